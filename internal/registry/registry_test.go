package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stressvision/stressvision/pkg/plugin"
	"go.uber.org/zap"
)

// testModule is a minimal module for testing.
type testModule struct {
	info      plugin.PluginInfo
	initErr   error
	cfgErr    error
	startErr  error
	stopOrder *[]string
}

func newTestModule(name string, deps ...string) *testModule {
	return &testModule{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "1.0.0",
			Description:  "test module " + name,
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
	}
}

func (m *testModule) Info() plugin.PluginInfo                             { return m.info }
func (m *testModule) Init(_ context.Context, _ plugin.Dependencies) error { return m.initErr }
func (m *testModule) Start(_ context.Context) error                       { return m.startErr }
func (m *testModule) ValidateConfig() error                               { return m.cfgErr }

func (m *testModule) Stop(_ context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.info.Name)
	}
	return nil
}

func testDeps() func(string) plugin.Dependencies {
	return func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop().Named(name)}
	}
}

func TestRegister_DuplicateFails(t *testing.T) {
	reg := New(zap.NewNop())

	m := newTestModule("roster")
	if err := reg.Register(m); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(m); err == nil {
		t.Fatal("Register() expected error for duplicate, got nil")
	}
}

func TestRegister_EmptyName(t *testing.T) {
	reg := New(zap.NewNop())
	m := &testModule{info: plugin.PluginInfo{Name: ""}}
	if err := reg.Register(m); err == nil {
		t.Fatal("Register() expected error for empty name, got nil")
	}
}

func TestValidate_TopologicalOrder(t *testing.T) {
	reg := New(zap.NewNop())

	// alerts -> stress -> eventlog -> roster, registered out of order.
	for _, m := range []*testModule{
		newTestModule("alerts", "stress"),
		newTestModule("roster"),
		newTestModule("stress", "eventlog"),
		newTestModule("eventlog", "roster"),
	} {
		if err := reg.Register(m); err != nil {
			t.Fatalf("Register(%s): %v", m.info.Name, err)
		}
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	pos := make(map[string]int, len(reg.order))
	for i, name := range reg.order {
		pos[name] = i
	}
	for _, pair := range [][2]string{
		{"roster", "eventlog"},
		{"eventlog", "stress"},
		{"stress", "alerts"},
	} {
		if pos[pair[0]] > pos[pair[1]] {
			t.Errorf("%s ordered after %s: %v", pair[0], pair[1], reg.order)
		}
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	reg := New(zap.NewNop())
	ma := newTestModule("a", "b")
	ma.info.Required = true
	mb := newTestModule("b", "a")
	mb.info.Required = true
	_ = reg.Register(ma)
	_ = reg.Register(mb)

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected cycle error, got nil")
	}
}

func TestValidate_MissingDependencyDisablesOptional(t *testing.T) {
	reg := New(zap.NewNop())
	_ = reg.Register(newTestModule("console", "reports"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reg.IsDisabled("console") {
		t.Error("optional module with missing dependency not disabled")
	}
}

func TestValidate_MissingDependencyFailsRequired(t *testing.T) {
	reg := New(zap.NewNop())
	m := newTestModule("eventlog", "roster")
	m.info.Required = true
	_ = reg.Register(m)

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected error for required module with missing dep")
	}
}

func TestInitAll_RequiredInitFailure(t *testing.T) {
	reg := New(zap.NewNop())
	m := newTestModule("eventlog")
	m.info.Required = true
	m.initErr = errors.New("no database")
	_ = reg.Register(m)
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := reg.InitAll(context.Background(), testDeps()); err == nil {
		t.Fatal("InitAll() expected error when required module fails")
	}
}

func TestInitAll_ConfigValidationFailsRequired(t *testing.T) {
	reg := New(zap.NewNop())
	m := newTestModule("alerts")
	m.info.Required = true
	m.cfgErr = errors.New("cooldown must be positive")
	_ = reg.Register(m)
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := reg.InitAll(context.Background(), testDeps()); err == nil {
		t.Fatal("InitAll() expected error for invalid required config")
	}
}

func TestStopAll_ReverseOrder(t *testing.T) {
	reg := New(zap.NewNop())
	var order []string

	roster := newTestModule("roster")
	roster.stopOrder = &order
	eventlog := newTestModule("eventlog", "roster")
	eventlog.stopOrder = &order
	_ = reg.Register(roster)
	_ = reg.Register(eventlog)

	ctx := context.Background()
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := reg.InitAll(ctx, testDeps()); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	reg.StopAll(ctx)

	if len(order) != 2 || order[0] != "eventlog" || order[1] != "roster" {
		t.Errorf("stop order = %v, want [eventlog roster]", order)
	}
}

func TestResolve(t *testing.T) {
	reg := New(zap.NewNop())
	m := newTestModule("stress")
	_ = reg.Register(m)

	got, ok := reg.Resolve("stress")
	if !ok || got != m {
		t.Errorf("Resolve(stress) = %v, %v; want registered module, true", got, ok)
	}
	if _, ok := reg.Resolve("ghost"); ok {
		t.Error("Resolve(ghost) = true, want false")
	}
}
