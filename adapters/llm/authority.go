package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"iaicore/domain/core"
	"iaicore/domain/evidence"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
)

// Authority is an external-reviewer backend: it hands the proposal, the
// supporting evidence, and the binding invariants to a chat model and
// parses a strict JSON verdict back. Transport failures, malformed JSON,
// and out-of-vocabulary decisions all collapse to REJECT. The model
// advises; the contract enforces.
type Authority struct {
	client ChatClient
	model  string
}

// NewAuthority wraps a chat client as an authority backend.
func NewAuthority(client ChatClient, model string) *Authority {
	return &Authority{client: client, model: model}
}

func (a *Authority) Name() string { return "llm/" + a.model }

// reviewResponse is the JSON contract the model must return.
type reviewResponse struct {
	Decision            string             `json:"decision"`
	Rationale           string             `json:"rationale"`
	Confidence          float64            `json:"confidence"`
	Concerns            []concernResponse  `json:"concerns,omitempty"`
	SuggestedAdjustment map[string]float64 `json:"suggested_adjustment,omitempty"`
}

type concernResponse struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Review asks the model to rule on the proposal.
func (a *Authority) Review(ctx context.Context, p proposal.Proposal, ev []evidence.Package, active invariant.Set) (verdict.Verdict, error) {
	if err := p.Validate(); err != nil {
		return a.rejectVerdict(p, fmt.Sprintf("malformed proposal: %v", err)), nil
	}

	prompt, err := buildPrompt(p, ev, active)
	if err != nil {
		return a.rejectVerdict(p, fmt.Sprintf("could not present proposal for review: %v", err)), nil
	}

	raw, err := a.client.ChatCompletion(ctx, a.model, prompt, 1024)
	if err != nil {
		return a.rejectVerdict(p, fmt.Sprintf("reviewer unreachable: %v", err)), nil
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		return a.rejectVerdict(p, fmt.Sprintf("reviewer returned an unusable verdict: %v", err)), nil
	}

	decision := verdict.Decision(parsed.Decision)
	if p.Type == proposal.TypeNoChange && decision != verdict.DecisionNoChange {
		// The model may editorialize; a heartbeat still resolves to NO_CHANGE.
		ack := verdict.New(p.ID, p.Generation, verdict.DecisionNoChange,
			fmt.Sprintf("heartbeat acknowledged; reviewer ruled %s on a no_change proposal", decision), 1.0)
		ack.Backend = a.Name()
		return ack, nil
	}
	if p.Type != proposal.TypeNoChange && decision == verdict.DecisionNoChange {
		return a.rejectVerdict(p, fmt.Sprintf("reviewer ruled NO_CHANGE on a %s proposal", p.Type)), nil
	}

	v := verdict.New(p.ID, p.Generation, decision, parsed.Rationale, parsed.Confidence)
	v.Backend = a.Name()
	v.SuggestedAdjustment = parsed.SuggestedAdjustment
	for _, c := range parsed.Concerns {
		v.Concerns = append(v.Concerns, verdict.Concern{Severity: c.Severity, Description: c.Description})
	}
	return v, nil
}

func (a *Authority) rejectVerdict(p proposal.Proposal, rationale string) verdict.Verdict {
	v := verdict.New(p.ID, p.Generation, verdict.DecisionReject, rationale, 1.0)
	v.Backend = a.Name()
	return v
}

func buildPrompt(p proposal.Proposal, ev []evidence.Package, active invariant.Set) (string, error) {
	proposalJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	invariantJSON, err := json.MarshalIndent(active, "", "  ")
	if err != nil {
		return "", err
	}
	evidenceJSON, err := json.MarshalIndent(relevantEvidence(p, ev), "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are the governance authority for an evaluation engine. ")
	b.WriteString("Review the proposal below against the binding invariants and the statistical evidence. ")
	b.WriteString("You only review; you never originate changes.\n\n")
	b.WriteString("Binding invariants:\n")
	b.Write(invariantJSON)
	b.WriteString("\n\nProposal:\n")
	b.Write(proposalJSON)
	b.WriteString("\n\nEvidence:\n")
	b.Write(evidenceJSON)
	b.WriteString("\n\nRespond with ONLY a JSON object, no prose, in this exact shape:\n")
	b.WriteString(`{"decision": "ACCEPT|REJECT|MODIFY|NO_CHANGE|REQUEST_EVIDENCE", "rationale": "...", "confidence": 0.0, "concerns": [{"severity": "low|medium|high|critical", "description": "..."}], "suggested_adjustment": {"param": 0.0}}`)
	b.WriteString("\nRules: use NO_CHANGE only for a no_change proposal; use MODIFY only with a suggested_adjustment; ")
	b.WriteString("if the evidence is missing or the sample is too small, use REQUEST_EVIDENCE; when unsure, REJECT.")
	return b.String(), nil
}

func relevantEvidence(p proposal.Proposal, ev []evidence.Package) []evidence.Package {
	if len(p.HypothesisIDs) == 0 {
		return ev
	}
	targeted := make(map[core.HypothesisID]bool, len(p.HypothesisIDs))
	for _, id := range p.HypothesisIDs {
		targeted[id] = true
	}
	var out []evidence.Package
	for _, pkg := range ev {
		if targeted[pkg.HypothesisID] {
			out = append(out, pkg)
		}
	}
	return out
}

var validDecisions = map[verdict.Decision]bool{
	verdict.DecisionAccept:          true,
	verdict.DecisionReject:          true,
	verdict.DecisionModify:          true,
	verdict.DecisionNoChange:        true,
	verdict.DecisionRequestEvidence: true,
}

// parseResponse extracts and validates the JSON verdict, tolerating code
// fences around the object but nothing else.
func parseResponse(raw string) (reviewResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed reviewResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return reviewResponse{}, fmt.Errorf("decode: %w", err)
	}
	if !validDecisions[verdict.Decision(parsed.Decision)] {
		return reviewResponse{}, fmt.Errorf("unknown decision %q", parsed.Decision)
	}
	if parsed.Rationale == "" {
		return reviewResponse{}, fmt.Errorf("missing rationale")
	}
	if verdict.Decision(parsed.Decision) == verdict.DecisionModify && len(parsed.SuggestedAdjustment) == 0 {
		return reviewResponse{}, fmt.Errorf("MODIFY without suggested adjustment")
	}
	return parsed, nil
}
