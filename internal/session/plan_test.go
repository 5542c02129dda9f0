// internal/session/plan_test.go
package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/actuator/internal/escalation"
)

const samplePlan = `
name: morning-round
start_url: https://social.test/home
reload_target: https://social.test/home
deadline: 20m
steps:
  - kind: toggle
    name: follow
    toggle:
      target: ['[data-testid="follow"]']
      done: ['[data-testid="unfollow"]']
      done_text: [Following]
      pending: ['[data-testid="follow-pending"]']
  - kind: pause
    min: 2s
    max: 5s
  - kind: choose
    rounds: 4
    options:
      - weight: 3
        step:
          kind: click
          name: like
          scope: sub_action
          target: ['[data-testid="like"]']
          verify:
            visible: ['[data-testid="unlike"]']
      - weight: 1
        step:
          kind: pause
          name: idle
          min: 3s
          max: 8s
`

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	want := &Plan{
		Name:         "morning-round",
		StartURL:     "https://social.test/home",
		ReloadTarget: "https://social.test/home",
		Deadline:     20 * time.Minute,
		Steps: []Step{
			{
				Kind: StepToggle,
				Name: "follow",
				Toggle: &escalation.ToggleSelectors{
					Target:   []string{`[data-testid="follow"]`},
					Done:     []string{`[data-testid="unfollow"]`},
					DoneText: []string{"Following"},
					Pending:  []string{`[data-testid="follow-pending"]`},
				},
			},
			{Kind: StepPause, Min: 2 * time.Second, Max: 5 * time.Second},
			{
				Kind:   StepChoose,
				Rounds: 4,
				Options: []Option{
					{Weight: 3, Step: Step{
						Kind:   StepClick,
						Name:   "like",
						Scope:  "sub_action",
						Target: []string{`[data-testid="like"]`},
						Verify: &VerifySpec{Visible: []string{`[data-testid="unlike"]`}},
					}},
					{Weight: 1, Step: Step{Kind: StepPause, Name: "idle", Min: 3 * time.Second, Max: 8 * time.Second}},
				},
			},
		},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("parsed plan mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, escalation.ScopeSubAction, p.Steps[2].Options[0].Step.scope())
	assert.Equal(t, escalation.ScopeSession, p.Steps[0].scope())
}

func TestParsePlan_RejectsUnknownFields(t *testing.T) {
	_, err := ParsePlan([]byte("name: x\nsteps:\n  - kind: pause\n    max: 1s\n    colour: red\n"))
	require.ErrorIs(t, err, ErrInvalidPlan)
	assert.Contains(t, err.Error(), "colour")
}

func TestPlanValidate_ReportsEveryProblem(t *testing.T) {
	p := &Plan{Steps: []Step{
		{Kind: StepClick},
		{Kind: StepToggle, Toggle: &escalation.ToggleSelectors{Target: []string{"#t"}}},
		{Kind: StepPause, Min: 5 * time.Second, Max: time.Second},
		{Kind: StepNavigate},
		{Kind: StepChoose, Options: []Option{{Weight: 1, Step: Step{Kind: StepChoose}}}},
		{Kind: StepChoose, Options: []Option{
			{Weight: 1, Step: Step{Kind: StepNavigate, URL: "u"}},
			{Weight: 1, Step: Step{Kind: StepNavigate, URL: "v"}},
		}},
		{Kind: "scroll"},
		{Kind: StepClick, Target: []string{"#a"}, Scope: "global"},
	}}
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidPlan)
	for _, fragment := range []string{
		"step 0 (click)",
		"step 1 (toggle)",
		"step 2 (pause)",
		"step 3 (navigate)",
		"cannot be nested",
		`option name "navigate" is used twice`,
		`unknown step kind "scroll"`,
		`unknown scope "global"`,
	} {
		assert.Contains(t, err.Error(), fragment)
	}

	assert.ErrorIs(t, (&Plan{}).Validate(), ErrInvalidPlan)
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o600))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "morning-round", p.Name)
	assert.Len(t, p.Steps, 3)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVerifySpec_Signals(t *testing.T) {
	var none *VerifySpec
	assert.Nil(t, none.Signals())

	v := &VerifySpec{
		Visible: []string{"#a"},
		Gone:    []string{"#spinner"},
		Text:    []TextCheck{{Selector: "#b", Attribute: "aria-pressed", Contains: "true"}},
	}
	assert.Equal(t, []escalation.Signal{
		escalation.VisibleSignal{Selector: "#a"},
		escalation.GoneSignal{Selector: "#spinner"},
		escalation.TextSignal{Selector: "#b", Attribute: "aria-pressed", Contains: "true"},
	}, v.Signals())
}
