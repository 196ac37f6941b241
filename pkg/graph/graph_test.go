package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/roam/pkg/actions"
	"github.com/aretw0/roam/pkg/domain"
	"github.com/aretw0/roam/pkg/ports"
)

// fakeInference scripts model responses per stage.
type fakeInference struct {
	structured map[string]func(msgs []domain.Message, out any) error
	tools      map[string]func(msgs []domain.Message, tools []ports.ToolSpec) (*domain.Message, error)
}

func (f *fakeInference) Structured(_ context.Context, stage string, _ bool, msgs []domain.Message, out any) error {
	h, ok := f.structured[stage]
	if !ok {
		return fmt.Errorf("unexpected structured call for stage %s", stage)
	}
	return h(msgs, out)
}

func (f *fakeInference) ToolCalls(_ context.Context, stage string, _ bool, msgs []domain.Message, tools []ports.ToolSpec) (*domain.Message, error) {
	h, ok := f.tools[stage]
	if !ok {
		return nil, fmt.Errorf("unexpected tool call for stage %s", stage)
	}
	return h(msgs, tools)
}

// fakeClock advances only when something sleeps, so launch polls are instant.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.sleeps++
}

// stubDevice answers device probes from scripted data.
type stubDevice struct {
	screen     *ports.ScreenData
	screenErr  error
	foreground []string // consumed one per probe; last entry repeats
	fgAt       int
	date       string
	launchErr  error
	launches   int
	calls      []string
}

func (d *stubDevice) ScreenData(context.Context) (*ports.ScreenData, error) {
	if d.screenErr != nil {
		return nil, d.screenErr
	}
	if d.screen != nil {
		return d.screen, nil
	}
	return &ports.ScreenData{Width: 1080, Height: 2400}, nil
}

func (d *stubDevice) ForegroundPackage(context.Context) (string, error) {
	if len(d.foreground) == 0 {
		return "", nil
	}
	fg := d.foreground[min(d.fgAt, len(d.foreground)-1)]
	d.fgAt++
	return fg, nil
}

func (d *stubDevice) DeviceDate(context.Context) (string, error) { return d.date, nil }

func (d *stubDevice) LaunchApp(_ context.Context, pkg string) error {
	d.launches++
	d.calls = append(d.calls, "launch "+pkg)
	return d.launchErr
}
func (d *stubDevice) StopApp(_ context.Context, pkg string) error {
	d.calls = append(d.calls, "stop "+pkg)
	return nil
}
func (d *stubDevice) Tap(_ context.Context, x, y int) error {
	d.calls = append(d.calls, fmt.Sprintf("tap %d,%d", x, y))
	return nil
}
func (d *stubDevice) LongPress(context.Context, int, int) error { return nil }
func (d *stubDevice) Swipe(context.Context, int, int, int, int, int) error {
	d.calls = append(d.calls, "swipe")
	return nil
}
func (d *stubDevice) InputText(_ context.Context, text string) error {
	d.calls = append(d.calls, "input "+text)
	return nil
}
func (d *stubDevice) EraseChars(context.Context, int) error { return nil }
func (d *stubDevice) ClearText(context.Context) error       { return nil }
func (d *stubDevice) PressKey(_ context.Context, key string) error {
	d.calls = append(d.calls, "key "+key)
	return nil
}
func (d *stubDevice) Back(context.Context) error {
	d.calls = append(d.calls, "back")
	return nil
}
func (d *stubDevice) OpenLink(_ context.Context, url string) error {
	d.calls = append(d.calls, "link "+url)
	return nil
}

func newDeps(inf *fakeInference, dev *stubDevice) *Deps {
	if inf == nil {
		inf = &fakeInference{}
	}
	if dev == nil {
		dev = &stubDevice{}
	}
	return &Deps{
		Device:    dev,
		Inference: inf,
		Actions:   actions.NewRegistry(nil),
		Config:    Config{}.Normalize(),
		Clock:     &fakeClock{now: time.Unix(0, 0)},
	}
}

// planID extracts the first subgoal id rendered in a prompt.
func planID(msgs []domain.Message) string {
	for _, m := range msgs {
		if i := strings.Index(m.Content, "[ID:"); i >= 0 {
			return m.Content[i+4 : i+10]
		}
	}
	return ""
}

func TestPlanner_ProducesFreshPlan(t *testing.T) {
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StagePlanner: func(msgs []domain.Message, out any) error {
			assert.Contains(t, msgs[1].Content, "Plan for this goal: order a pizza")
			o := out.(*plannerOutput)
			o.Subgoals = []struct {
				Description string `json:"description"`
			}{{"Open the app"}, {"Place the order"}}
			return nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "order a pizza")
	u, err := (&planner{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, u.ReplacePlan, 2)
	assert.False(t, u.Replan)
	assert.Equal(t, domain.SubgoalNotStarted, u.ReplacePlan[0].Status)
	assert.NotEmpty(t, u.ReplacePlan[0].ID)
	assert.NotEqual(t, u.ReplacePlan[0].ID, u.ReplacePlan[1].ID)
}

func TestPlanner_ReplanDiscardsOldIDs(t *testing.T) {
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StagePlanner: func(msgs []domain.Message, out any) error {
			assert.Contains(t, msgs[1].Content, "Replan for this goal")
			assert.Contains(t, msgs[1].Content, "Previous plan:")
			o := out.(*plannerOutput)
			o.Subgoals = []struct {
				Description string `json:"description"`
			}{{"Try a different screen"}}
			return nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "order a pizza")
	old := domain.NewSubgoal("Open the app")
	old.Status = domain.SubgoalFailure
	s.Plan = domain.Plan{old}

	u, err := (&planner{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, u.Replan)
	require.Len(t, u.ReplacePlan, 1)
	assert.NotEqual(t, old.ID, u.ReplacePlan[0].ID)
	assert.Equal(t, domain.SubgoalNotStarted, u.ReplacePlan[0].Status)
}

func TestPlanner_EmptyOutputIsAnError(t *testing.T) {
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StagePlanner: func([]domain.Message, any) error { return nil },
	}}
	deps := newDeps(inf, nil)

	_, err := (&planner{deps: deps}).run(context.Background(), domain.NewState("s1", "goal"))
	assert.ErrorIs(t, err, domain.ErrEmptyPlan)
}

func TestOrchestrator_StartsFirstSubgoalWithoutModelCall(t *testing.T) {
	deps := newDeps(nil, nil) // any model call would fail the test

	s := domain.NewState("s1", "goal")
	s.Plan = domain.Plan{domain.NewSubgoal("Open the app"), domain.NewSubgoal("Search")}

	u, err := (&orchestrator{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u.ReplacePlan)
	assert.Equal(t, domain.SubgoalPending, u.ReplacePlan[0].Status)
	assert.Equal(t, domain.SubgoalNotStarted, u.ReplacePlan[1].Status)
	require.NotNil(t, u.SetCompleteIDs)
	assert.Empty(t, *u.SetCompleteIDs)
	require.Len(t, u.Thoughts, 1)
	assert.Contains(t, u.Thoughts[0].Text, "Starting the first subgoal")
}

func TestOrchestrator_NothingReportedLeavesPlanAlone(t *testing.T) {
	deps := newDeps(nil, nil)

	s := domain.NewState("s1", "goal")
	sg := domain.NewSubgoal("Open the app")
	sg.Status = domain.SubgoalPending
	s.Plan = domain.Plan{sg}

	u, err := (&orchestrator{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, u.ReplacePlan)
	require.NotNil(t, u.SetCompleteIDs)
	assert.Empty(t, *u.SetCompleteIDs)
	assert.Contains(t, u.Thoughts[0].Text, "No subgoal to examine")
}

func TestOrchestrator_ConfirmedCurrentAdvancesPlan(t *testing.T) {
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageOrchestrator: func(msgs []domain.Message, out any) error {
			o := out.(*orchestratorOutput)
			o.CompletedSubgoalIDs = []string{planID(msgs)}
			o.Reason = "the app is open"
			return nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "goal")
	cur := domain.NewSubgoal("Open the app")
	cur.Status = domain.SubgoalPending
	next := domain.NewSubgoal("Search")
	s.Plan = domain.Plan{cur, next}
	s.CompleteIDs = []string{cur.ID}

	u, err := (&orchestrator{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u.ReplacePlan)
	assert.Equal(t, domain.SubgoalSuccess, u.ReplacePlan[0].Status)
	assert.Equal(t, domain.SubgoalPending, u.ReplacePlan[1].Status)
	require.NotNil(t, u.SetCompleteIDs)
	assert.Empty(t, *u.SetCompleteIDs)

	var texts []string
	for _, th := range u.Thoughts {
		texts = append(texts, th.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "NEXT SUBGOAL")
}

func TestOrchestrator_UnconfirmedCurrentStaysPending(t *testing.T) {
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageOrchestrator: func(msgs []domain.Message, out any) error {
			o := out.(*orchestratorOutput)
			o.Reason = "not convinced"
			return nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "goal")
	cur := domain.NewSubgoal("Open the app")
	cur.Status = domain.SubgoalPending
	s.Plan = domain.Plan{cur}
	s.CompleteIDs = []string{cur.ID}

	u, err := (&orchestrator{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u.ReplacePlan)
	assert.Equal(t, domain.SubgoalPending, u.ReplacePlan[0].Status)
	require.NotNil(t, u.SetCompleteIDs)
	assert.Empty(t, *u.SetCompleteIDs)
}

func TestOrchestrator_ReplanRequestFailsCurrent(t *testing.T) {
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageOrchestrator: func(msgs []domain.Message, out any) error {
			o := out.(*orchestratorOutput)
			o.NeedsReplanning = true
			o.Reason = "the screen never loads"
			return nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "goal")
	cur := domain.NewSubgoal("Open the app")
	cur.Status = domain.SubgoalPending
	s.Plan = domain.Plan{cur}
	s.CompleteIDs = []string{cur.ID}

	u, err := (&orchestrator{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u.ReplacePlan)
	assert.Equal(t, domain.SubgoalFailure, u.ReplacePlan[0].Status)
	assert.Equal(t, "the screen never loads", u.ReplacePlan[0].CompletionReason)

	var texts []string
	for _, th := range u.Thoughts {
		texts = append(texts, th.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "REPLANNING")
}

func TestDecision_NormalizesSentinelsAndClearsContext(t *testing.T) {
	for _, sentinel := range []string{"{}", "[]", "null", "", "None"} {
		inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
			StageDecision: func(msgs []domain.Message, out any) error {
				o := out.(*decisionOutput)
				o.Decisions = sentinel
				o.DecisionsReason = "nothing to do"
				return nil
			},
		}}
		deps := newDeps(inf, nil)

		s := domain.NewState("s1", "goal")
		s.Snapshot = &domain.Snapshot{Width: 1080, Height: 2400}

		u, err := (&decision{deps: deps}).run(context.Background(), s)
		require.NoError(t, err)
		require.NotNil(t, u.SetDecision)
		assert.Empty(t, *u.SetDecision, "sentinel %q must normalize to empty", sentinel)
		require.NotNil(t, u.SetCompleteIDs)
		assert.NotNil(t, *u.SetCompleteIDs)
		assert.True(t, u.ClearSnapshot)
		assert.True(t, u.ClearExec)
	}
}

func TestDecision_PassesSnapshotAndFeedbackToModel(t *testing.T) {
	var seen []domain.Message
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageDecision: func(msgs []domain.Message, out any) error {
			seen = msgs
			o := out.(*decisionOutput)
			o.Decisions = `[{"action":"tap"}]`
			o.DecisionsReason = "tap the button"
			return nil
		},
	}}
	deps := newDeps(inf, nil)
	deps.Config.LockedApp = "com.example.app"

	s := domain.NewState("s1", "goal")
	s.Decision = `[{"action":"launch_app"}]`
	s.ExecMessages = []domain.Message{
		domain.ToolMessage(domain.ToolResult{Name: "launch_app", Content: "App launched."}),
	}
	s.Thoughts = []string{"[planner] made a plan"}
	s.Snapshot = &domain.Snapshot{
		Width: 1080, Height: 2400,
		DeviceDate: "2026-08-30",
		FocusedApp: "com.example.app",
		UIElements: []map[string]any{{"text": "Submit"}},
	}

	u, err := (&decision{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u.SetDecision)
	assert.Equal(t, `[{"action":"tap"}]`, *u.SetDecision)
	require.NotNil(t, u.SetRationale)
	assert.Contains(t, *u.SetRationale, "Decisions reason: tap the button")

	joined := ""
	for _, m := range seen {
		joined += m.Content + "\n"
	}
	assert.Contains(t, joined, "Screen size: 1080x2400")
	assert.Contains(t, joined, "Device date: 2026-08-30")
	assert.Contains(t, joined, "launch_app (ok): App launched.")
	assert.Contains(t, joined, `locked to the app "com.example.app"`)
	assert.Contains(t, joined, "[planner] made a plan")
	assert.Contains(t, joined, "UI hierarchy")
}

func TestDecision_AttachesScreenshotToContext(t *testing.T) {
	var seen []domain.Message
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageDecision: func(msgs []domain.Message, out any) error {
			seen = msgs
			out.(*decisionOutput).Decisions = "null"
			return nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "goal")
	s.Snapshot = &domain.Snapshot{
		Width: 1080, Height: 2400,
		ScreenshotB64: "aGVsbG8=",
	}

	_, err := (&decision{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)

	var images []string
	for _, m := range seen {
		if m.ImageB64 != "" {
			assert.Equal(t, domain.RoleUser, m.Role)
			images = append(images, m.ImageB64)
		}
	}
	assert.Equal(t, []string{"aGVsbG8="}, images)
}

func TestExecutor_SkipsWithoutDecision(t *testing.T) {
	deps := newDeps(nil, nil)

	s := domain.NewState("s1", "goal")
	u, err := (&executor{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, u.AppendExec)
	require.Len(t, u.Thoughts, 1)
	assert.Contains(t, u.Thoughts[0].Text, "No structured decisions found")
}

func TestExecutor_RequestsToolCalls(t *testing.T) {
	resp := domain.Message{
		Role:      domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{ID: "c1", Name: "tap", Args: map[string]any{}}},
	}
	inf := &fakeInference{tools: map[string]func([]domain.Message, []ports.ToolSpec) (*domain.Message, error){
		StageExecutor: func(msgs []domain.Message, tools []ports.ToolSpec) (*domain.Message, error) {
			assert.Len(t, tools, 15)
			assert.Contains(t, msgs[1].Content, "tap the button")
			assert.Contains(t, msgs[2].Content, `"action":"tap"`)
			return &resp, nil
		},
	}}
	deps := newDeps(inf, nil)

	s := domain.NewState("s1", "goal")
	s.Decision = `[{"action":"tap"}]`
	s.LastRationale = "Decisions reason: tap the button"

	u, err := (&executor{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, u.AppendExec, 1)
	assert.Equal(t, resp.ToolCalls, u.AppendExec[0].ToolCalls)
}

func TestToolRunner_FailFastAbortsRemainingCalls(t *testing.T) {
	dev := &stubDevice{}
	deps := newDeps(nil, dev)

	s := domain.NewState("s1", "goal")
	s.ExecMessages = []domain.Message{{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: "open_link", Args: map[string]any{"url": "https://a", "agent_thought": "open a"}},
			{ID: "c2", Name: "open_link", Args: map[string]any{"url": "https://b"}},
			{ID: "c3", Name: "tap", Args: map[string]any{"target": map[string]any{"text": "Missing"}}},
			{ID: "c4", Name: "open_link", Args: map[string]any{"url": "https://c"}},
			{ID: "c5", Name: "open_link", Args: map[string]any{"url": "https://d"}},
		},
	}}

	u, err := (&toolRunner{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, u.AppendExec, 5)
	require.Len(t, u.AppendHistory, 5)

	assert.False(t, u.AppendExec[0].Result.IsError)
	assert.False(t, u.AppendExec[1].Result.IsError)
	assert.True(t, u.AppendExec[2].Result.IsError)
	for _, i := range []int{3, 4} {
		assert.True(t, u.AppendExec[i].Result.IsError)
		assert.Equal(t, abortedMessage, u.AppendExec[i].Result.Content)
	}

	// Only the calls before the failure reached the device.
	assert.Equal(t, []string{"link https://a", "link https://b"}, dev.calls)

	var texts []string
	for _, th := range u.Thoughts {
		texts = append(texts, th.Text)
	}
	assert.Contains(t, strings.Join(texts, "\n"), "open a")
}

func TestToolRunner_NotesFoldIntoScratchpad(t *testing.T) {
	deps := newDeps(nil, &stubDevice{})

	s := domain.NewState("s1", "goal")
	s.Scratchpad["existing"] = "kept"
	s.ExecMessages = []domain.Message{{
		Role: domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: "save_note", Args: map[string]any{"key": "order", "content": "ABC-123"}},
			{ID: "c2", Name: "read_note", Args: map[string]any{"key": "order"}},
		},
	}}

	u, err := (&toolRunner{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", u.Scratchpad["order"])
	assert.Equal(t, "kept", u.Scratchpad["existing"])
	assert.False(t, u.AppendExec[1].Result.IsError, "the second call must see the first call's note")
	// The original state's pad is untouched until the merge.
	assert.NotContains(t, s.Scratchpad, "order")
}

func TestToolRunner_NoPendingCallsIsANoop(t *testing.T) {
	deps := newDeps(nil, &stubDevice{})

	s := domain.NewState("s1", "goal")
	s.ExecMessages = []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "back"}}},
		domain.ToolMessage(domain.ToolResult{CallID: "c1", Name: "back", Content: "done"}),
	}

	u, err := (&toolRunner{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, u.AppendExec)
	assert.Empty(t, u.AppendHistory)
}

func TestTruncateErr_CutsOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncateErr("short"))

	// A two-byte rune straddling the cap must be dropped whole, never split.
	long := strings.Repeat("a", errTruncateLen-1) + "é" + strings.Repeat("b", 20)
	got := truncateErr(long)
	assert.Equal(t, strings.Repeat("a", errTruncateLen-1), got)
	assert.True(t, utf8.ValidString(got))

	exact := strings.Repeat("a", errTruncateLen)
	assert.Equal(t, exact, truncateErr(exact))
}

func TestCompactor_TrimsAtExchangeBoundary(t *testing.T) {
	deps := newDeps(nil, nil)
	deps.Config.MaxHistory = 4

	s := domain.NewState("s1", "goal")
	s.History = []domain.Message{
		domain.UserMessage("u0"),
		domain.AssistantMessage("a0"),
		domain.ToolMessage(domain.ToolResult{Content: "t0"}),
		domain.AssistantMessage("a1"),
		domain.UserMessage("u1"),
		domain.AssistantMessage("a2"),
	}

	u, err := (&compactor{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	// excess = 2; the latest user/tool boundary inside the prefix is index 0.
	assert.Equal(t, 1, u.TrimHistory)
}

func TestCompactor_UnderThresholdIsANoop(t *testing.T) {
	deps := newDeps(nil, nil)
	deps.Config.MaxHistory = 40

	s := domain.NewState("s1", "goal")
	s.History = []domain.Message{domain.UserMessage("u0")}

	u, err := (&compactor{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Zero(t, u.TrimHistory)
}

func TestLaunch_PollWaitsThroughLoadingGap(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	dev := &stubDevice{foreground: []string{"", "", "com.example.app"}}
	deps := newDeps(nil, dev)
	deps.Clock = clock

	require.NoError(t, deps.pollForAppReady(context.Background(), "com.example.app"))
	assert.Equal(t, 2, clock.sleeps)
}

func TestLaunch_WrongForegroundFailsAttemptEarly(t *testing.T) {
	dev := &stubDevice{foreground: []string{"com.other.app"}}
	deps := newDeps(nil, dev)
	deps.Config.LaunchAttempts = 1

	err := deps.launchWithRetries(context.Background(), "com.example.app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong app in foreground")
	assert.Equal(t, 1, dev.launches)
}

func TestLaunch_RetriesAreBounded(t *testing.T) {
	dev := &stubDevice{launchErr: errors.New("device busy")}
	deps := newDeps(nil, dev)
	deps.Config.LaunchAttempts = 3

	err := deps.launchWithRetries(context.Background(), "com.example.app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, dev.launches)
}

func TestLaunch_TimesOutWhenAppNeverLoads(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	dev := &stubDevice{foreground: []string{""}}
	deps := newDeps(nil, dev)
	deps.Clock = clock
	deps.Config.LaunchWait = 3 * time.Second
	deps.Config.LaunchPoll = time.Second

	err := deps.pollForAppReady(context.Background(), "com.example.app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestPrepareSession_RecordsLaunchOutcome(t *testing.T) {
	dev := &stubDevice{foreground: []string{"com.example.app"}}
	deps := newDeps(nil, dev)
	deps.Config.LockedApp = "com.example.app"

	s := domain.NewState("s1", "goal")
	PrepareSession(context.Background(), deps, s)
	require.NotNil(t, s.AppLock)
	assert.True(t, s.AppLock.LaunchOK)
	assert.True(t, s.AppLock.InitialChecks)

	// A failed launch is recorded, not fatal.
	dev = &stubDevice{launchErr: errors.New("device busy")}
	deps = newDeps(nil, dev)
	deps.Config.LockedApp = "com.example.app"
	deps.Config.LaunchAttempts = 1

	s = domain.NewState("s2", "goal")
	PrepareSession(context.Background(), deps, s)
	require.NotNil(t, s.AppLock)
	assert.False(t, s.AppLock.LaunchOK)
	assert.NotEmpty(t, s.AppLock.LaunchError)
}

func TestCollector_CapturesSnapshot(t *testing.T) {
	dev := &stubDevice{
		screen: &ports.ScreenData{
			Elements: []map[string]any{{"text": "Submit"}},
			Width:    1080, Height: 2400,
		},
		foreground: []string{"com.example.app"},
		date:       "2026-08-30",
	}
	deps := newDeps(nil, dev)

	u, err := (&collector{deps: deps}).run(context.Background(), domain.NewState("s1", "goal"))
	require.NoError(t, err)
	require.NotNil(t, u.Snapshot)
	assert.Equal(t, "com.example.app", u.Snapshot.FocusedApp)
	assert.Equal(t, "2026-08-30", u.Snapshot.DeviceDate)
	assert.Equal(t, 1080, u.Snapshot.Width)
	assert.Len(t, u.Snapshot.UIElements, 1)
}

func TestCollector_AppLockSkipsWhenLaunchNeverSucceeded(t *testing.T) {
	dev := &stubDevice{foreground: []string{"com.other.app"}}
	deps := newDeps(nil, dev) // any model call would fail the test

	s := domain.NewState("s1", "goal")
	s.AppLock = &domain.AppLock{Package: "com.example.app", InitialChecks: true}

	u, err := (&collector{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, u.Thoughts)
}

func TestCollector_AppLockAllowsDeviation(t *testing.T) {
	dev := &stubDevice{foreground: []string{"com.android.sharesheet"}}
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageCollector: func(msgs []domain.Message, out any) error {
			assert.Contains(t, msgs[1].Content, "com.android.sharesheet")
			o := out.(*appLockOutput)
			o.ShouldRelaunch = false
			o.Reasoning = "the share sheet serves the goal"
			return nil
		},
	}}
	deps := newDeps(inf, dev)

	s := domain.NewState("s1", "goal")
	s.AppLock = &domain.AppLock{Package: "com.example.app", LaunchOK: true, InitialChecks: true}

	u, err := (&collector{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, u.Thoughts, 1)
	assert.Contains(t, u.Thoughts[0].Text, "Allowed temporary deviation")
	assert.Zero(t, dev.launches)
}

func TestCollector_AppLockRelaunches(t *testing.T) {
	// First probe sees the intruder; the post-launch polls see the locked app.
	dev := &stubDevice{foreground: []string{"com.other.app", "com.example.app"}}
	inf := &fakeInference{structured: map[string]func([]domain.Message, any) error{
		StageCollector: func(msgs []domain.Message, out any) error {
			o := out.(*appLockOutput)
			o.ShouldRelaunch = true
			o.Reasoning = "the deviation does not serve the goal"
			return nil
		},
	}}
	deps := newDeps(inf, dev)

	s := domain.NewState("s1", "goal")
	s.AppLock = &domain.AppLock{Package: "com.example.app", LaunchOK: true, InitialChecks: true}

	u, err := (&collector{deps: deps}).run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.launches)
	require.Len(t, u.Thoughts, 1)
	assert.Contains(t, u.Thoughts[0].Text, "Relaunched locked app")
}

func TestRouteAfterExecutor(t *testing.T) {
	s := domain.NewState("s1", "goal")
	assert.Equal(t, []string{"skip"}, routeAfterExecutor(s))

	s.ExecMessages = []domain.Message{{Role: domain.RoleAssistant}}
	assert.Equal(t, []string{"skip"}, routeAfterExecutor(s))

	s.ExecMessages = []domain.Message{{
		Role:      domain.RoleAssistant,
		ToolCalls: []domain.ToolCall{{ID: "c1", Name: "back"}},
	}}
	assert.Equal(t, []string{"invoke_tools"}, routeAfterExecutor(s))
}

func TestRouteAfterDecision(t *testing.T) {
	s := domain.NewState("s1", "goal")

	// No decision and nothing reported complete: only the review runs.
	assert.Equal(t, []string{"review_subgoals"}, routeAfterDecision(s))

	// A decision alone schedules only the executor.
	s.Decision = `[{"action":"back"}]`
	assert.Equal(t, []string{"execute_decisions"}, routeAfterDecision(s))

	// Completions alongside a decision fan out into both branches.
	s.CompleteIDs = []string{"abc123"}
	assert.Equal(t, []string{"review_subgoals", "execute_decisions"}, routeAfterDecision(s))

	// Completions without a decision: review only.
	s.Decision = ""
	assert.Equal(t, []string{"review_subgoals"}, routeAfterDecision(s))
}

func TestConvergenceGate(t *testing.T) {
	s := domain.NewState("s1", "goal")

	pending := domain.NewSubgoal("step")
	pending.Status = domain.SubgoalPending
	s.Plan = domain.Plan{pending}
	assert.Equal(t, []string{"continue"}, convergenceGate(s))

	failed := domain.NewSubgoal("step")
	failed.Status = domain.SubgoalFailure
	s.Plan = domain.Plan{failed}
	assert.Equal(t, []string{"replan"}, convergenceGate(s))

	done := domain.NewSubgoal("step")
	done.Status = domain.SubgoalSuccess
	s.Plan = domain.Plan{done}
	assert.Equal(t, []string{"end"}, convergenceGate(s))

	// Nothing pending and nothing failed: the run is over.
	stuck := domain.NewSubgoal("step")
	s.Plan = domain.Plan{stuck}
	assert.Equal(t, []string{"end"}, convergenceGate(s))
}

func TestConvergence_MarksTerminalRunsDone(t *testing.T) {
	s := domain.NewState("s1", "goal")
	done := domain.NewSubgoal("step")
	done.Status = domain.SubgoalSuccess
	s.Plan = domain.Plan{done}

	u, err := convergence(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, u.BumpCycle)
	assert.True(t, u.Done)

	pending := domain.NewSubgoal("step")
	pending.Status = domain.SubgoalPending
	s.Plan = domain.Plan{pending}
	u, err = convergence(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, u.Done)
}

// TestGraph_FullRun drives a complete session through the wired graph: plan
// one subgoal, execute one tool batch, confirm completion, end.
func TestGraph_FullRun(t *testing.T) {
	dev := &stubDevice{
		screen:     &ports.ScreenData{Width: 1080, Height: 2400},
		foreground: []string{"com.example.app"},
		date:       "2026-08-30",
	}

	decided := false
	inf := &fakeInference{
		structured: map[string]func([]domain.Message, any) error{
			StagePlanner: func(msgs []domain.Message, out any) error {
				o := out.(*plannerOutput)
				o.Subgoals = []struct {
					Description string `json:"description"`
				}{{"Go back one screen"}}
				return nil
			},
			StageDecision: func(msgs []domain.Message, out any) error {
				o := out.(*decisionOutput)
				if !decided {
					decided = true
					o.Decisions = `[{"action":"back"}]`
					o.DecisionsReason = "leave the current screen"
					return nil
				}
				o.Decisions = "null"
				o.GoalsCompletionReason = "the screen was left"
				o.CompleteSubgoalIDs = []string{planID(msgs)}
				return nil
			},
			StageOrchestrator: func(msgs []domain.Message, out any) error {
				o := out.(*orchestratorOutput)
				o.CompletedSubgoalIDs = []string{planID(msgs)}
				o.Reason = "confirmed complete"
				return nil
			},
		},
		tools: map[string]func([]domain.Message, []ports.ToolSpec) (*domain.Message, error){
			StageExecutor: func(msgs []domain.Message, tools []ports.ToolSpec) (*domain.Message, error) {
				return &domain.Message{
					Role: domain.RoleAssistant,
					ToolCalls: []domain.ToolCall{{
						ID:   "c1",
						Name: "back",
						Args: map[string]any{"agent_thought": "going back"},
					}},
				}, nil
			},
		},
	}

	deps := newDeps(inf, dev)
	eng := Build(deps)

	s := domain.NewState("s1", "leave the current screen")
	require.NoError(t, eng.Run(context.Background(), s))

	assert.True(t, s.Done)
	assert.True(t, s.Plan.AllSucceeded())
	assert.Greater(t, s.Cycle, 0)
	assert.Contains(t, dev.calls, "back")

	// Only the branches the decision actually scheduled may have run: an
	// action cycle must not wake the orchestrator, and a review cycle must
	// not wake the executor.
	joined := strings.Join(s.Thoughts, "\n")
	assert.Contains(t, joined, "going back")
	assert.NotContains(t, joined, "No subgoal to examine")
	assert.NotContains(t, joined, "No structured decisions found")
}
