package roam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/roam/pkg/adapters/memory"
	"github.com/aretw0/roam/pkg/domain"
	"github.com/aretw0/roam/pkg/ports"
)

// scriptedInference completes any plan in one decision pass: the planner
// returns a single subgoal and the decision stage immediately reports it done.
type scriptedInference struct {
	extract func(msgs []domain.Message, out any) error
}

func (f *scriptedInference) Structured(_ context.Context, stage string, _ bool, msgs []domain.Message, out any) error {
	switch stage {
	case "planner":
		return unmarshalInto(out, `{"subgoals":[{"description":"finish the goal"}]}`)
	case "decision":
		id := extractID(msgs)
		return unmarshalInto(out, fmt.Sprintf(
			`{"decisions":"null","goals_completion_reason":"done","complete_subgoals_by_ids":[%q]}`, id))
	case "orchestrator":
		id := extractID(msgs)
		return unmarshalInto(out, fmt.Sprintf(
			`{"completed_subgoal_ids":[%q],"reason":"confirmed"}`, id))
	case "extract":
		if f.extract != nil {
			return f.extract(msgs, out)
		}
		return errors.New("no extract script")
	default:
		return fmt.Errorf("unexpected stage %s", stage)
	}
}

func (f *scriptedInference) ToolCalls(context.Context, string, bool, []domain.Message, []ports.ToolSpec) (*domain.Message, error) {
	return &domain.Message{Role: domain.RoleAssistant}, nil
}

type idleDevice struct{}

func (idleDevice) ScreenData(context.Context) (*ports.ScreenData, error) {
	return &ports.ScreenData{Width: 1080, Height: 2400}, nil
}
func (idleDevice) ForegroundPackage(context.Context) (string, error) { return "", nil }
func (idleDevice) DeviceDate(context.Context) (string, error)        { return "2026-08-30", nil }
func (idleDevice) LaunchApp(context.Context, string) error           { return nil }
func (idleDevice) StopApp(context.Context, string) error             { return nil }
func (idleDevice) Tap(context.Context, int, int) error               { return nil }
func (idleDevice) LongPress(context.Context, int, int) error         { return nil }
func (idleDevice) Swipe(context.Context, int, int, int, int, int) error {
	return nil
}
func (idleDevice) InputText(context.Context, string) error { return nil }
func (idleDevice) EraseChars(context.Context, int) error   { return nil }
func (idleDevice) ClearText(context.Context) error         { return nil }
func (idleDevice) PressKey(context.Context, string) error  { return nil }
func (idleDevice) Back(context.Context) error              { return nil }
func (idleDevice) OpenLink(context.Context, string) error  { return nil }

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, &scriptedInference{})
	assert.Error(t, err)

	_, err = New(idleDevice{}, nil)
	assert.Error(t, err)

	eng, err := New(idleDevice{}, &scriptedInference{})
	require.NoError(t, err)
	assert.NotNil(t, eng)
}

func TestRun_CompletesAndPersists(t *testing.T) {
	eng, err := New(idleDevice{}, &scriptedInference{})
	require.NoError(t, err)

	state, err := eng.Run(context.Background(), "finish the goal")
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.True(t, state.Plan.AllSucceeded())

	loaded, err := eng.Session(context.Background(), state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, state.Goal, loaded.Goal)

	ids, err := eng.Sessions(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, state.SessionID)

	require.NoError(t, eng.DeleteSession(context.Background(), state.SessionID))
	_, err = eng.Session(context.Background(), state.SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

// recordingStore keeps every saved state in arrival order.
type recordingStore struct {
	ports.StateStore
	saves []*domain.State
}

func (r *recordingStore) Save(ctx context.Context, id string, s *domain.State) error {
	r.saves = append(r.saves, s)
	return r.StateStore.Save(ctx, id, s)
}

func TestRun_PersistsEveryCycle(t *testing.T) {
	store := &recordingStore{StateStore: memory.NewStore()}
	eng, err := New(idleDevice{}, &scriptedInference{}, WithStore(store))
	require.NoError(t, err)

	state, err := eng.Run(context.Background(), "finish the goal")
	require.NoError(t, err)
	require.True(t, state.Done)

	// One save per completed cycle plus the final one, so a session is
	// visible in the store while it is still running.
	require.GreaterOrEqual(t, len(store.saves), 2)
	assert.False(t, store.saves[0].Done, "a mid-run save must capture the session in flight")
	assert.True(t, store.saves[len(store.saves)-1].Done)
}

func TestRun_RejectsEmptyGoal(t *testing.T) {
	eng, err := New(idleDevice{}, &scriptedInference{})
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), "   ")
	assert.Error(t, err)
}

func TestExtract_MinesThoughtsAndNotes(t *testing.T) {
	inf := &scriptedInference{
		extract: func(msgs []domain.Message, out any) error {
			assert.Contains(t, msgs[1].Content, "the confirmation code")
			assert.Contains(t, msgs[1].Content, "order: ABC-123")
			o := out.(*ExtractOutput)
			o.Found = true
			o.Output = "ABC-123"
			o.Reason = "found in the saved notes"
			return nil
		},
	}
	eng, err := New(idleDevice{}, inf)
	require.NoError(t, err)

	state := domain.NewState("s1", "goal")
	state.Thoughts = []string{"[executor] Saved the order code."}
	state.Scratchpad["order"] = "ABC-123"

	out, err := eng.Extract(context.Background(), state, "the confirmation code")
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, "ABC-123", out.Output)
}

// extractInference scripts the primary/fallback pair of the extract stage.
type extractInference struct {
	primaryErr  error
	fallbackErr error
	calls       []bool
}

func (f *extractInference) Structured(_ context.Context, _ string, fallback bool, _ []domain.Message, out any) error {
	f.calls = append(f.calls, fallback)
	if !fallback && f.primaryErr != nil {
		return f.primaryErr
	}
	if fallback && f.fallbackErr != nil {
		return f.fallbackErr
	}
	o := out.(*ExtractOutput)
	o.Found = true
	o.Output = "ABC-123"
	return nil
}

func (f *extractInference) ToolCalls(context.Context, string, bool, []domain.Message, []ports.ToolSpec) (*domain.Message, error) {
	return nil, errors.New("extract never binds tools")
}

func TestExtract_FallsBackWhenPrimaryFails(t *testing.T) {
	inf := &extractInference{primaryErr: errors.New("primary down")}
	eng, err := New(idleDevice{}, inf)
	require.NoError(t, err)

	out, err := eng.Extract(context.Background(), domain.NewState("s1", "goal"), "the code")
	require.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, []bool{false, true}, inf.calls)
}

func TestExtract_BothModelsFailingIsTerminal(t *testing.T) {
	inf := &extractInference{
		primaryErr:  errors.New("primary down"),
		fallbackErr: errors.New("fallback down"),
	}
	eng, err := New(idleDevice{}, inf)
	require.NoError(t, err)

	_, err = eng.Extract(context.Background(), domain.NewState("s1", "goal"), "the code")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInference)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "fallback down")
}

func unmarshalInto(out any, raw string) error {
	return json.Unmarshal([]byte(raw), out)
}

// extractID pulls the first subgoal id rendered in a prompt.
func extractID(msgs []domain.Message) string {
	for _, m := range msgs {
		if i := strings.Index(m.Content, "[ID:"); i >= 0 {
			return m.Content[i+4 : i+10]
		}
	}
	return ""
}
