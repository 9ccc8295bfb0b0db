package lifecycle

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// Row is one state's entry in a transition table.
type Row struct {
	Always       []Action         `yaml:"always"`
	WhenAssigned []Action         `yaml:"when_assigned"`
	Targets      map[Action]State `yaml:"targets"`
}

// Completion names the action that stamps a completion date and the state it
// reaches.
type Completion struct {
	Action Action `yaml:"action"`
	State  State  `yaml:"state"`
}

// OverdueRule moves documents still in From to To once the due date passes.
type OverdueRule struct {
	From State `yaml:"from"`
	To   State `yaml:"to"`
}

// Table is the transition table for one kind.
type Table struct {
	Kind            Kind             `yaml:"-"`
	Initial         State            `yaml:"initial"`
	States          []State          `yaml:"states"`
	Completion      *Completion      `yaml:"completion"`
	Overdue         *OverdueRule     `yaml:"overdue"`
	EmailTemplate   string           `yaml:"email_template"`
	Visibility      bool             `yaml:"visibility"`
	PublishesToken  bool             `yaml:"publishes_token"`
	Targets         map[Action]State `yaml:"targets"`
	EmailTargets    map[Action]State `yaml:"email_targets"`
	Progress        map[State]int    `yaml:"progress"`
	ProgressPastDue *int             `yaml:"progress_past_due"`
	Rows            map[State]Row    `yaml:"rows"`
}

// Tables indexes transition tables by kind.
type Tables map[Kind]*Table

// DefaultTables parses the embedded transition tables.
func DefaultTables() (Tables, error) {
	return ParseTables(defaultTables)
}

// ParseTables decodes and validates a YAML table document.
func ParseTables(data []byte) (Tables, error) {
	raw := map[Kind]*Table{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode transition tables: %w", err)
	}
	tables := Tables{}
	for kind, table := range raw {
		if !kind.IsValid() {
			return nil, fmt.Errorf("transition tables: unknown kind %q", kind)
		}
		if table == nil {
			return nil, fmt.Errorf("transition tables: empty table for %s", kind)
		}
		table.Kind = kind
		if err := table.validate(); err != nil {
			return nil, err
		}
		tables[kind] = table
	}
	return tables, nil
}

func (t *Table) validate() error {
	if !t.HasState(t.Initial) {
		return fmt.Errorf("%s table: initial state %q not declared", t.Kind, t.Initial)
	}
	checkTargets := func(where string, targets map[Action]State) error {
		for action, state := range targets {
			if !action.IsKnown() {
				return fmt.Errorf("%s table: %s names unknown action %q", t.Kind, where, action)
			}
			if !t.HasState(state) {
				return fmt.Errorf("%s table: %s targets unknown state %q", t.Kind, where, state)
			}
		}
		return nil
	}
	if err := checkTargets("targets", t.Targets); err != nil {
		return err
	}
	if err := checkTargets("email_targets", t.EmailTargets); err != nil {
		return err
	}
	for _, state := range t.States {
		row, ok := t.Rows[state]
		if !ok {
			return fmt.Errorf("%s table: no row for state %q", t.Kind, state)
		}
		for _, action := range append(append([]Action{}, row.Always...), row.WhenAssigned...) {
			if !action.IsKnown() {
				return fmt.Errorf("%s table: state %q offers unknown action %q", t.Kind, state, action)
			}
		}
		if err := checkTargets(fmt.Sprintf("row %q", state), row.Targets); err != nil {
			return err
		}
		if _, ok := t.Progress[state]; !ok {
			return fmt.Errorf("%s table: no progress for state %q", t.Kind, state)
		}
	}
	for state := range t.Rows {
		if !t.HasState(state) {
			return fmt.Errorf("%s table: row for undeclared state %q", t.Kind, state)
		}
	}
	if t.Completion != nil && !t.HasState(t.Completion.State) {
		return fmt.Errorf("%s table: completion state %q not declared", t.Kind, t.Completion.State)
	}
	if t.Overdue != nil && (!t.HasState(t.Overdue.From) || !t.HasState(t.Overdue.To)) {
		return fmt.Errorf("%s table: overdue rule names undeclared state", t.Kind)
	}
	return nil
}

// HasState reports whether state belongs to the kind's enumeration.
func (t *Table) HasState(state State) bool {
	for _, candidate := range t.States {
		if candidate == state {
			return true
		}
	}
	return false
}

// Available returns the actions offered in state, de-duplicated and sorted.
func (t *Table) Available(state State, assigned bool) []Action {
	row, ok := t.Rows[state]
	if !ok {
		return nil
	}
	seen := map[Action]struct{}{}
	actions := make([]Action, 0, len(row.Always)+len(row.WhenAssigned))
	add := func(list []Action) {
		for _, action := range list {
			if _, dup := seen[action]; dup {
				continue
			}
			seen[action] = struct{}{}
			actions = append(actions, action)
		}
	}
	add(row.Always)
	if assigned {
		add(row.WhenAssigned)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Allows reports whether action is offered in state.
func (t *Table) Allows(state State, assigned bool, action Action) bool {
	for _, candidate := range t.Available(state, assigned) {
		if candidate == action {
			return true
		}
	}
	return false
}

// Target resolves the state an allowed action leads to from state. The second
// return value is false when the state is left unchanged.
func (t *Table) Target(state State, action Action, email bool) (State, bool) {
	if email {
		if target, ok := t.EmailTargets[action]; ok {
			return target, true
		}
	}
	if row, ok := t.Rows[state]; ok {
		if target, ok := row.Targets[action]; ok {
			return target, true
		}
	}
	target, ok := t.Targets[action]
	return target, ok
}
