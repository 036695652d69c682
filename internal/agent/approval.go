package agent

import (
	"errors"
	"fmt"
)

// ErrInvalidApprovalPolicy is returned for an unknown approval mode
var ErrInvalidApprovalPolicy = errors.New("invalid approval mode")

// ApprovalPolicy controls which proposed commands run without a human
type ApprovalPolicy string

const (
	ApprovalSuggest  ApprovalPolicy = "suggest"
	ApprovalAutoEdit ApprovalPolicy = "auto-edit"
	ApprovalFullAuto ApprovalPolicy = "full-auto"
)

// ParseApprovalPolicy validates s. An empty string selects ApprovalSuggest.
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch ApprovalPolicy(s) {
	case "":
		return ApprovalSuggest, nil
	case ApprovalSuggest, ApprovalAutoEdit, ApprovalFullAuto:
		return ApprovalPolicy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidApprovalPolicy, s)
	}
}

// ReviewDecision is the outcome of a command confirmation
type ReviewDecision string

const (
	ReviewYes        ReviewDecision = "yes"
	ReviewNoContinue ReviewDecision = "no-continue"
	ReviewNoExit     ReviewDecision = "no-exit"
	ReviewAlways     ReviewDecision = "always"
)

// CommandConfirmation decides whether a proposed command may run
type CommandConfirmation func(command []string) ReviewDecision

// applyPatchCommand is the only command auto-edit approves on its own
const applyPatchCommand = "apply_patch"

// ConfirmationFor returns the non-interactive confirmation handler for policy.
// With no human in the loop, anything not approved by the policy is declined
// and the turn continues.
func ConfirmationFor(policy ApprovalPolicy) CommandConfirmation {
	return func(command []string) ReviewDecision {
		switch policy {
		case ApprovalFullAuto:
			return ReviewYes
		case ApprovalAutoEdit:
			if len(command) > 0 && command[0] == applyPatchCommand {
				return ReviewYes
			}
		}
		return ReviewNoContinue
	}
}
