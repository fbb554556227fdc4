// Package agent defines the role-configured profile used for each pipeline
// stage and the single function that runs a stage against a backend.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/valpere/sctran/internal/llm"
)

// DefaultTemperature matches the sampling temperature the stages were tuned with.
const DefaultTemperature = 0.7

// ErrNoProfile is returned when a stage has no configured profile, e.g. refine
// with reinforcement disabled.
var ErrNoProfile = errors.New("agent: no profile for stage")

// Stage is one LLM-driven transformation step.
type Stage string

const (
	StageParse    Stage = "parse"
	StageGenerate Stage = "generate"
	StageAudit    Stage = "audit"
	StageRefine   Stage = "refine"
	StageABI      Stage = "abi"
	StageMCP      Stage = "mcp"
	StageEvaluate Stage = "evaluate"
)

// Profile configures the persona a stage runs under.
type Profile struct {
	Role         string   `yaml:"role" json:"role"`
	Goal         string   `yaml:"goal" json:"goal"`
	Instructions string   `yaml:"instructions" json:"instructions"`
	Model        string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// SystemPrompt renders the profile as a system message.
func (p Profile) SystemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s.\n", p.Role)
	if p.Goal != "" {
		fmt.Fprintf(&sb, "Your goal: %s.\n", strings.TrimSuffix(p.Goal, "."))
	}
	if p.Instructions != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Instructions)
	}
	return strings.TrimSpace(sb.String())
}

// Profiles maps each stage to its persona.
type Profiles map[Stage]Profile

// Stages returns the configured stages in a stable order.
func (ps Profiles) Stages() []Stage {
	out := make([]Stage, 0, len(ps))
	for s := range ps {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Defaults returns the built-in profiles. The refiner is only present when
// reinforcement is enabled.
func Defaults(enableReinforcement bool) Profiles {
	ps := Profiles{
		StageParse: {
			Role: "Contract Analysis Expert",
			Goal: "Extract precise, specific information from legal contracts",
			Instructions: "You are an expert contract analyst specializing in extracting exact terminology, " +
				"function names, variable names, states, and conditions from legal documents. " +
				"You never use generic placeholders - only specific terms from the contract.",
		},
		StageGenerate: {
			Role: "Solidity Smart Contract Developer",
			Goal: "Generate complete, production-ready Solidity smart contracts",
			Instructions: "You are a Solidity expert who generates COMPLETE, FUNCTIONAL smart contracts. " +
				"You implement every function with full logic, use require() for validation, " +
				"implement proper access control, and ensure all variables are actively used. " +
				"You never write placeholder code or empty functions.",
		},
		StageAudit: {
			Role: "Blockchain Security Auditor",
			Goal: "Identify security vulnerabilities in smart contracts",
			Instructions: "You are a blockchain security expert who audits smart contracts for vulnerabilities. " +
				"You check for reentrancy, access control issues, integer overflow, and other common exploits. " +
				"You provide severity ratings (none/low/medium/high/critical) based on exploitability and impact. " +
				"You give specific line references and concrete remediation steps, not generic advice.",
		},
		StageABI: {
			Role: "Ethereum ABI Specialist",
			Goal: "Generate accurate ABI specifications from Solidity contracts",
			Instructions: "You are an Ethereum ABI expert who generates complete, accurate ABI JSON " +
				"from Solidity contracts, including all functions, events, and constructor details.",
		},
		StageMCP: {
			Role: "MCP Server Developer",
			Goal: "Generate production-ready MCP server code for blockchain interaction",
			Instructions: "You are an expert Python developer specializing in Web3.py and MCP server generation. " +
				"You create complete, self-contained MCP servers with proper error handling and " +
				"transaction management for smart contract interaction.",
		},
		StageEvaluate: {
			Role: "Smart Contract Quality Evaluator",
			Goal: "Score generated contracts against reference implementations",
			Instructions: "You compare a generated Solidity contract with a reference implementation of the same " +
				"requirement and score completeness, state machine fidelity, security and code quality. " +
				"You are strict and you justify every missing feature.",
			Temperature: ptr(0.2),
		},
	}
	if enableReinforcement {
		ps[StageRefine] = Profile{
			Role: "Smart Contract Security Refiner",
			Goal: "Fix all identified security vulnerabilities in Solidity smart contracts",
			Instructions: "You are a Solidity security specialist who fixes smart contract vulnerabilities. " +
				"Given a contract and a list of security issues from an audit, you rewrite the code " +
				"to address every vulnerability while maintaining the original functionality. " +
				"You follow the Checks-Effects-Interactions pattern, add reentrancy guards where needed, " +
				"implement proper access control, validate all inputs with require(), " +
				"and ensure no silent failures. You return ONLY the fixed Solidity code.",
		}
	}
	return ps
}

// LoadFile overlays profiles from a YAML file of the form
//
//	audit:
//	  role: ...
//	  model: gpt-4o
//
// onto base. Empty fields in the file keep the base value. Unknown stage
// names are rejected.
func LoadFile(path string, base Profiles) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent profiles: %w", err)
	}
	var overrides map[string]Profile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse agent profiles: %w", err)
	}

	out := make(Profiles, len(base))
	for s, p := range base {
		out[s] = p
	}
	for name, o := range overrides {
		s := Stage(strings.ToLower(strings.TrimSpace(name)))
		if !knownStage(s) {
			return nil, fmt.Errorf("agent profiles: unknown stage %q", name)
		}
		p := out[s]
		if o.Role != "" {
			p.Role = o.Role
		}
		if o.Goal != "" {
			p.Goal = o.Goal
		}
		if o.Instructions != "" {
			p.Instructions = o.Instructions
		}
		if o.Model != "" {
			p.Model = o.Model
		}
		if o.Temperature != nil {
			p.Temperature = o.Temperature
		}
		out[s] = p
	}
	return out, nil
}

func knownStage(s Stage) bool {
	switch s {
	case StageParse, StageGenerate, StageAudit, StageRefine, StageABI, StageMCP, StageEvaluate:
		return true
	}
	return false
}

// Invoker runs stage tasks against one backend.
type Invoker struct {
	backend     llm.Backend
	profiles    Profiles
	temperature float64
}

// NewInvoker binds profiles to backend. temperature applies to profiles that
// do not set their own and is sent as given, zero included.
func NewInvoker(backend llm.Backend, profiles Profiles, temperature float64) *Invoker {
	return &Invoker{backend: backend, profiles: profiles, temperature: temperature}
}

// Has reports whether stage has a profile.
func (iv *Invoker) Has(stage Stage) bool {
	_, ok := iv.profiles[stage]
	return ok
}

// Invoke sends task to the backend under the stage's profile and returns the
// raw reply.
func (iv *Invoker) Invoke(ctx context.Context, stage Stage, task string) (string, error) {
	p, ok := iv.profiles[stage]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNoProfile, stage)
	}
	temp := iv.temperature
	if p.Temperature != nil {
		temp = *p.Temperature
	}
	return iv.backend.Complete(llm.WithStage(ctx, string(stage)), llm.Request{
		System:      p.SystemPrompt(),
		Prompt:      task,
		Model:       p.Model,
		Temperature: &temp,
	})
}

func ptr[T any](v T) *T { return &v }
