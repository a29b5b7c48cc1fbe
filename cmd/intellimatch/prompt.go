package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/espin086/IntelliMatch/internal/config"
	"github.com/espin086/IntelliMatch/internal/prompt"
)

var (
	promptTemplate    string
	promptRaw         string
	promptRole        string
	promptBehavior    string
	promptTask        string
	promptAudience    string
	promptOutputSpec  string
	promptContext     string
	promptStructure   string
	promptConstraints string
	promptData        string
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Send a structured prompt to the configured LLM",
	Long: `Prompt builds a request from one of the built-in templates and sends it
to the provider configured under the llm section (or the IM_LLM_* variables).

Templates:
  optimizer  rewrite a raw prompt for clarity (--raw)
  tocd       task, output, context, data
  rtao       role, task, audience, output
  ultimate   role, behavior, task, structure, constraints, data

The model's reply is printed to stdout.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPrompt(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	promptCmd.Flags().StringVarP(&promptTemplate, "template", "t", "optimizer", "template to use: optimizer, tocd, rtao, or ultimate")
	promptCmd.Flags().StringVar(&promptRaw, "raw", "", "raw prompt to rewrite (optimizer)")
	promptCmd.Flags().StringVar(&promptRole, "role", "", "role the model should take on")
	promptCmd.Flags().StringVar(&promptBehavior, "behavior", "", "behavioral instructions for the model")
	promptCmd.Flags().StringVar(&promptTask, "task", "", "task to perform")
	promptCmd.Flags().StringVar(&promptAudience, "audience", "", "audience the answer is written for")
	promptCmd.Flags().StringVar(&promptOutputSpec, "output", "", "required shape of the answer")
	promptCmd.Flags().StringVar(&promptContext, "context", "", "background context for the task")
	promptCmd.Flags().StringVar(&promptStructure, "structure", "", "structure the answer must follow")
	promptCmd.Flags().StringVar(&promptConstraints, "constraints", "", "constraints the answer must respect")
	promptCmd.Flags().StringVar(&promptData, "data", "", "data the task operates on")
	rootCmd.AddCommand(promptCmd)
}

func runPrompt() error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	text, err := buildPromptText()
	if err != nil {
		return err
	}

	gen, err := prompt.NewGenerator(cfg.LLMConfig())
	if err != nil {
		return err
	}

	log.Printf("Sending %s prompt to %s", promptTemplate, cfg.LLM.Provider)
	reply, err := gen.Generate(ctx, text)
	if err != nil {
		return err
	}

	fmt.Println(reply)
	return nil
}

func buildPromptText() (string, error) {
	switch promptTemplate {
	case "optimizer":
		if strings.TrimSpace(promptRaw) == "" {
			return "", fmt.Errorf("the optimizer template requires --raw")
		}
		return prompt.Optimize(promptRaw), nil

	case "tocd":
		p := prompt.TOCD{Task: promptTask, Output: promptOutputSpec, Context: promptContext, Data: promptData}
		if err := p.Validate(); err != nil {
			return "", err
		}
		return p.Render(), nil

	case "rtao":
		p := prompt.RTAO{Role: promptRole, Task: promptTask, Audience: promptAudience, Output: promptOutputSpec}
		if err := p.Validate(); err != nil {
			return "", err
		}
		return p.Render(), nil

	case "ultimate":
		p := prompt.Ultimate{Role: promptRole, Behavior: promptBehavior, Task: promptTask, Structure: promptStructure, Constraints: promptConstraints, Data: promptData}
		if err := p.Validate(); err != nil {
			return "", err
		}
		return p.Render(), nil

	default:
		return "", fmt.Errorf("unknown template: %s (want optimizer, tocd, rtao, or ultimate)", promptTemplate)
	}
}
