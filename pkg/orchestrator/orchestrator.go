// Package orchestrator drives one pipeline run per user chat turn: research,
// planning, validation, and synthesis in strict order, with resilience
// wrapping, graceful degradation, event streaming, and usage accounting.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/metrics"
	"tuxpilot/pkg/proto"
	"tuxpilot/pkg/resilience"
	"tuxpilot/pkg/stages"
	"tuxpilot/pkg/stream"
	"tuxpilot/pkg/tools"
	"tuxpilot/pkg/usage"
)

// ClientProvider yields the LLM client serving a stage kind. agent.Factory
// is the production implementation.
type ClientProvider interface {
	ClientFor(agentType proto.AgentType) (llm.Client, error)
}

// UsageSink durably persists per-run usage. Saves are idempotent per run ID.
type UsageSink interface {
	SaveRun(ctx context.Context, run usage.RunUsage) error
}

// ToolProvider builds the tool registry for a run against the user's system
// profile.
type ToolProvider func(profile proto.SystemProfile) *tools.Registry

// Options carries the orchestrator's collaborators. Recorder, Store, Sink,
// and Tools may be nil; Clients and Executor are required.
type Options struct {
	Clients  ClientProvider
	Executor *resilience.Executor
	Counter  *usage.TokenCounter
	Recorder metrics.Recorder
	Store    UsageSink
	Sink     stream.Sink
	Tools    ToolProvider
}

// Orchestrator owns run lifecycle for all chats. Safe for concurrent use;
// the breaker registry inside the executor is the only state shared between
// runs.
type Orchestrator struct {
	cfg      config.Config
	clients  ClientProvider
	executor *resilience.Executor
	counter  *usage.TokenCounter
	recorder metrics.Recorder
	store    UsageSink
	sink     stream.Sink
	tools    ToolProvider
	runs     *runRegistry
}

// New creates an orchestrator.
func New(cfg config.Config, opts Options) (*Orchestrator, error) {
	if opts.Clients == nil {
		return nil, fmt.Errorf("orchestrator requires a client provider")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("orchestrator requires a resilience executor")
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NopRecorder{}
	}
	if opts.Tools == nil {
		deep := cfg.Strategies.DeepMaxResults
		opts.Tools = func(profile proto.SystemProfile) *tools.Registry {
			return tools.DefaultRegistry(profile, deep)
		}
	}
	return &Orchestrator{
		cfg:      cfg,
		clients:  opts.Clients,
		executor: opts.Executor,
		counter:  opts.Counter,
		recorder: opts.Recorder,
		store:    opts.Store,
		sink:     opts.Sink,
		tools:    opts.Tools,
		runs:     newRunRegistry(),
	}, nil
}

// Run starts one orchestration for the given context and returns its event
// channel. Any run still active for the same chat is canceled first and
// emits nothing further. The channel closes when the run ends; the last
// event is message:done on success or error on failure.
func (o *Orchestrator) Run(ctx context.Context, octx *proto.OrchestratorContext) (<-chan *proto.AgentEvent, error) {
	if err := octx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator context: %w", err)
	}

	runID := proto.NewRunID()
	runCtx, _ := o.runs.begin(ctx, octx.ChatID, runID)
	s := stream.New(runCtx, runID, o.cfg.StreamBuffer, o.sink)

	logx.Infof("run %s started for chat %s (tier %s)", runID, octx.ChatID, octx.Tier)
	go o.execute(runCtx, s, octx, runID)
	return s.Events(), nil
}

// run holds the mutable state of one execution.
type run struct {
	id       string
	octx     *proto.OrchestratorContext
	stream   *stream.Stream
	acc      *usage.Accumulator
	tools    *tools.Registry
	caveats  []string
	research *proto.ResearchOutput
	plan     *proto.PlannerOutput
	valid    *proto.ValidatorOutput
}

func (o *Orchestrator) execute(ctx context.Context, s *stream.Stream, octx *proto.OrchestratorContext, runID string) {
	start := time.Now()
	defer s.Close()
	defer o.runs.finish(octx.ChatID, runID)

	profile := proto.SystemProfile{}
	if octx.SystemProfile != nil {
		profile = *octx.SystemProfile
	}
	r := &run{
		id:     runID,
		octx:   octx,
		stream: s,
		acc:    usage.NewAccumulator(runID, octx.ChatID),
		tools:  o.tools(profile),
	}

	status := o.pipeline(ctx, r)
	duration := time.Since(start)
	snap := r.acc.Snapshot()
	o.recorder.ObserveRun(status, duration, snap.TotalTokens)
	logx.Infof("run %s finished: %s in %s, %d tokens ($%.4f)",
		runID, status, duration.Round(time.Millisecond), snap.TotalTokens, snap.TotalCostUSD)
}

// pipeline runs the stages in order and returns the terminal run status:
// "done", "error", or "canceled".
func (o *Orchestrator) pipeline(ctx context.Context, r *run) string {
	query := r.octx.UserMessage()

	o.proposeDiscovery(r)
	if canceled, aborted := o.researchPhase(ctx, r, query); canceled {
		return "canceled"
	} else if aborted {
		return "error"
	}
	if r.research != nil {
		if canceled, aborted := o.planPhase(ctx, r, query); canceled {
			return "canceled"
		} else if aborted {
			return "error"
		}
	}
	if r.plan != nil && len(r.plan.Commands) > 0 {
		if canceled, aborted := o.validatePhase(ctx, r, query); canceled {
			return "canceled"
		} else if aborted {
			return "error"
		}
	}
	return o.synthesizePhase(ctx, r, query)
}

// proposeDiscovery offers read-only probe commands when the run has no
// usable system profile. The UI may run them and attach the results to a
// later turn; the current run proceeds with the profile it has.
func (o *Orchestrator) proposeDiscovery(r *run) {
	p := r.octx.SystemProfile
	if p != nil && (p.Distro != "" || p.PackageManager != "") {
		return
	}
	r.stream.Emit(proto.NewDiscoveryEvent(proto.DiscoveryPayload{
		AgentID:  "system",
		Commands: []string{"cat /etc/os-release", "uname -r", "echo $SHELL"},
		Prompt:   "Share the output of these read-only commands to get answers tailored to your system.",
	}))
}

// researchPhase runs research and at most one sub-research deepening. A
// failed research stage degrades to a history-only answer; r.research stays
// nil and the later phases are skipped.
func (o *Orchestrator) researchPhase(ctx context.Context, r *run, query string) (canceled, aborted bool) {
	agentID := proto.NewAgentID(proto.AgentResearch)
	strategy := stages.SelectStrategy(r.octx.Tier, query)

	out, failure := o.runResearch(ctx, r, stages.ResearchInput{
		AgentID:  agentID,
		Query:    query,
		Strategy: strategy,
		Profile:  r.octx.SystemProfile,
		History:  r.octx.MessageHistory,
	}, "Research the question and gather sources")
	if failure != nil {
		if failure.Reason == resilience.ReasonCanceled {
			return true, false
		}
		return false, !o.degrade(r, proto.AgentResearch,
			"Research was unavailable for this answer; it relies on the conversation alone.")
	}
	r.research = out

	if out.NeedsDeeper && o.cfg.Strategies.SubResearchBudget > 0 {
		o.subResearch(ctx, r, agentID, out)
	}
	return false, false
}

// subResearch runs the bounded deepening pass. Its failure only costs the
// extra detail, never the run.
func (o *Orchestrator) subResearch(ctx context.Context, r *run, parentID string, parent *proto.ResearchOutput) {
	budget := o.cfg.Strategies.SubResearchBudget
	topic := parent.SubTopic
	for depth := 1; depth <= budget && topic != ""; depth++ {
		childID := proto.NewAgentID(proto.AgentResearch)
		out, failure := o.runResearch(ctx, r, stages.ResearchInput{
			AgentID:       childID,
			Query:         topic,
			Strategy:      stages.StrategyQuick,
			Profile:       r.octx.SystemProfile,
			History:       r.octx.MessageHistory,
			ParentAgentID: parentID,
			Depth:         depth,
		}, fmt.Sprintf("Deepen research into: %s", topic))
		if failure != nil {
			return
		}
		r.research.Citations = append(r.research.Citations, out.Citations...)
		r.research.Summary += "\n\nDeeper on " + topic + ":\n" + out.Summary
		r.research.TokensUsed += out.TokensUsed

		// The loop bound is the budget, not the agent's self-restraint: an
		// agent that always asks to go deeper still stops here.
		topic = ""
		if out.NeedsDeeper {
			topic = out.SubTopic
		}
		parentID = childID
	}
}

func (o *Orchestrator) runResearch(ctx context.Context, r *run, in stages.ResearchInput, task string) (*proto.ResearchOutput, *resilience.StageFailure) {
	o.spawn(r, proto.SpawnPayload{
		AgentID:       in.AgentID,
		Name:          "researcher",
		AgentType:     proto.AgentResearch,
		Color:         agentColors[proto.AgentResearch],
		Task:          task,
		ParentAgentID: in.ParentAgentID,
		Depth:         in.Depth,
	})
	r.stream.Emit(proto.NewStatusEvent(in.AgentID, proto.StatusSearching))

	stage := &stages.Research{
		Deps:    o.deps(r, proto.AgentResearch),
		Tools:   r.tools,
		Weights: &o.cfg.SourceWeights,
		Caps:    o.cfg.Strategies,
	}
	if stage.Deps.Client == nil {
		return nil, o.clientFailure(r, in.AgentID, proto.AgentResearch)
	}

	out, failure := observe(ctx, o, r, in.AgentID, proto.AgentResearch, stage.Deps.Client.ModelName(),
		func(ctx context.Context) (*proto.ResearchOutput, error) {
			return stage.Run(ctx, in)
		})
	if failure != nil {
		return nil, failure
	}
	r.stream.Emit(proto.NewStatusEvent(in.AgentID, proto.StatusDone))
	r.stream.Emit(proto.NewResultEvent(in.AgentID,
		fmt.Sprintf("gathered %d sources", len(out.Citations))))
	return out, nil
}

// planPhase runs the planner. Failure degrades to an info-only answer.
func (o *Orchestrator) planPhase(ctx context.Context, r *run, query string) (canceled, aborted bool) {
	agentID := proto.NewAgentID(proto.AgentPlanner)
	o.spawn(r, proto.SpawnPayload{
		AgentID:   agentID,
		Name:      "planner",
		AgentType: proto.AgentPlanner,
		Color:     agentColors[proto.AgentPlanner],
		Task:      "Turn research into steps and commands",
	})
	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusThinking))

	stage := &stages.Planner{Deps: o.deps(r, proto.AgentPlanner)}
	if stage.Deps.Client == nil {
		o.clientFailure(r, agentID, proto.AgentPlanner)
		return false, !o.degrade(r, proto.AgentPlanner,
			"Planning was unavailable; this answer is informational only.")
	}

	out, failure := observe(ctx, o, r, agentID, proto.AgentPlanner, stage.Deps.Client.ModelName(),
		func(ctx context.Context) (*proto.PlannerOutput, error) {
			return stage.Run(ctx, stages.PlannerInput{
				AgentID:  agentID,
				Query:    query,
				Research: r.research,
				Profile:  r.octx.SystemProfile,
				History:  r.octx.MessageHistory,
			})
		})
	if failure != nil {
		if failure.Reason == resilience.ReasonCanceled {
			return true, false
		}
		return false, !o.degrade(r, proto.AgentPlanner,
			"Planning was unavailable; this answer is informational only.")
	}

	r.plan = out
	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusDone))
	r.stream.Emit(proto.NewResultEvent(agentID,
		fmt.Sprintf("%d steps, %d commands", len(out.Steps), len(out.Commands))))
	return false, false
}

// validatePhase reviews the planner's commands. Failure degrades to passing
// them through flagged with a warning.
func (o *Orchestrator) validatePhase(ctx context.Context, r *run, query string) (canceled, aborted bool) {
	agentID := proto.NewAgentID(proto.AgentValidator)
	o.spawn(r, proto.SpawnPayload{
		AgentID:   agentID,
		Name:      "validator",
		AgentType: proto.AgentValidator,
		Color:     agentColors[proto.AgentValidator],
		Task:      "Review proposed commands for safety",
	})
	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusValidating))

	stage := &stages.Validator{Deps: o.deps(r, proto.AgentValidator)}
	if stage.Deps.Client == nil {
		o.clientFailure(r, agentID, proto.AgentValidator)
		return false, !o.passThroughUnvalidated(r)
	}

	out, failure := observe(ctx, o, r, agentID, proto.AgentValidator, stage.Deps.Client.ModelName(),
		func(ctx context.Context) (*proto.ValidatorOutput, error) {
			return stage.Run(ctx, stages.ValidatorInput{
				AgentID:  agentID,
				Query:    query,
				Commands: r.plan.Commands,
				Profile:  r.octx.SystemProfile,
			})
		})
	if failure != nil {
		if failure.Reason == resilience.ReasonCanceled {
			return true, false
		}
		return false, !o.passThroughUnvalidated(r)
	}

	r.valid = out
	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusDone))
	r.stream.Emit(proto.NewResultEvent(agentID,
		fmt.Sprintf("approved %d, blocked %d", len(out.ValidatedCommands), len(out.Blocked))))
	return false, false
}

// passThroughUnvalidated applies the validator degradation: planner commands
// are surfaced unreviewed, each call-out flagged. Returns false when
// degradation is disabled.
func (o *Orchestrator) passThroughUnvalidated(r *run) bool {
	if !o.degrade(r, proto.AgentValidator,
		"Command validation was unavailable; the commands below are unreviewed. Double-check before running them.") {
		return false
	}
	r.valid = &proto.ValidatorOutput{
		ValidatedCommands: r.plan.Commands,
		Warnings:          []string{"commands were not safety-reviewed"},
	}
	return true
}

// synthesizePhase produces the final answer. There is no degradation past
// this point: synthesizer failure is a terminal error.
func (o *Orchestrator) synthesizePhase(ctx context.Context, r *run, query string) string {
	agentID := proto.NewAgentID(proto.AgentSynthesizer)
	o.spawn(r, proto.SpawnPayload{
		AgentID:   agentID,
		Name:      "synthesizer",
		AgentType: proto.AgentSynthesizer,
		Color:     agentColors[proto.AgentSynthesizer],
		Task:      "Write the final answer",
	})
	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusThinking))

	stage := &stages.Synthesizer{Deps: o.deps(r, proto.AgentSynthesizer)}
	if stage.Deps.Client == nil {
		o.clientFailure(r, agentID, proto.AgentSynthesizer)
		return o.fail(r, "no model available for synthesis")
	}

	out, failure := observe(ctx, o, r, agentID, proto.AgentSynthesizer, stage.Deps.Client.ModelName(),
		func(ctx context.Context) (*proto.SynthesizerOutput, error) {
			return stage.Run(ctx, stages.SynthesizerInput{
				AgentID:  agentID,
				Query:    query,
				History:  r.octx.MessageHistory,
				Research: r.research,
				Plan:     r.plan,
				Valid:    r.valid,
				Caveats:  r.caveats,
			})
		})
	if failure != nil {
		if failure.Reason == resilience.ReasonCanceled {
			return "canceled"
		}
		if !o.cfg.EnableDegradation {
			return o.fail(r, fmt.Sprintf("synthesis failed: %v", failure.Err))
		}
		// The last resort: the earlier stages already produced usable
		// material, so assemble a reduced answer from it locally.
		o.recorder.IncDegradation(string(proto.AgentSynthesizer))
		logx.Warnf("run %s degrading past synthesizer stage: %v", r.id, failure.Err)
		r.caveats = append(r.caveats,
			"The answer could not be fully written; below is the raw research summary and any reviewed commands.")
		o.fallbackAnswer(r)
		o.finalize(ctx, r)
		return "done"
	}

	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusDone))
	r.stream.Emit(proto.NewResultEvent(agentID,
		fmt.Sprintf("answer ready (%s, %d commands)", out.Metadata.ResponseType, out.Metadata.CommandCount)))

	o.curiousPhase(ctx, r, query, out.Response)
	o.finalize(ctx, r)
	return "done"
}

// curiousPhase suggests a follow-up question for pro users. It runs under
// the shared resilience policy like every stage; any failure is logged and
// forgotten.
func (o *Orchestrator) curiousPhase(ctx context.Context, r *run, query, response string) {
	if r.octx.Tier != proto.TierPro {
		return
	}
	deps := o.deps(r, proto.AgentCurious)
	if deps.Client == nil {
		return
	}
	agentID := proto.NewAgentID(proto.AgentCurious)
	stage := &stages.Curious{Deps: deps}
	out, failure := resilience.Execute(ctx, o.executor, proto.AgentCurious,
		func(ctx context.Context) (*stages.CuriousOutput, error) {
			return stage.Run(ctx, stages.CuriousInput{
				AgentID:  agentID,
				Query:    query,
				Response: response,
				History:  r.octx.MessageHistory,
			})
		})
	if failure != nil || out.Question == "" {
		if failure != nil {
			logx.Debugf("curious stage skipped: %v", failure.Err)
		}
		return
	}
	r.stream.Emit(proto.NewQuestionEvent(proto.QuestionPayload{
		AgentID:     agentID,
		QuestionID:  proto.NewQuestionID(),
		Question:    out.Question,
		Options:     out.Options,
		AllowCustom: true,
	}))
}

// fallbackAnswer streams a locally assembled reduced answer: the caveats,
// the research summary, and the reviewed commands. No model is involved.
func (o *Orchestrator) fallbackAnswer(r *run) {
	var b strings.Builder
	for _, caveat := range r.caveats {
		b.WriteString(caveat)
		b.WriteString("\n")
	}
	if r.research != nil && r.research.Summary != "" {
		b.WriteString("\nWhat the research found:\n")
		b.WriteString(r.research.Summary)
		b.WriteString("\n")
	}
	if r.valid != nil && len(r.valid.ValidatedCommands) > 0 {
		b.WriteString("\nReviewed commands from the plan:\n")
		for _, cmd := range r.valid.ValidatedCommands {
			fmt.Fprintf(&b, "  %s (%s risk)\n", cmd.Command, cmd.Risk)
		}
	}
	r.stream.Emit(proto.NewChunkEvent(b.String()))
}

// finalize persists usage and emits the terminal message:done.
func (o *Orchestrator) finalize(ctx context.Context, r *run) {
	snap := r.acc.Snapshot()

	if o.store != nil && ctx.Err() == nil {
		if err := o.store.SaveRun(ctx, snap); err != nil {
			logx.Warnf("usage persistence failed for run %s: %v", r.id, err)
		}
	}

	var citations []proto.Citation
	if r.research != nil {
		citations = r.research.Citations
	}
	var commands []proto.CommandProposal
	if r.valid != nil {
		commands = r.valid.ValidatedCommands
	}
	r.stream.Emit(proto.NewDoneEvent(proto.DonePayload{
		Citations:       citations,
		Commands:        commands,
		TotalTokensUsed: snap.TotalTokens,
		AgentMetrics:    snap.Agents,
	}))
}

// degrade records a degradation and its user-facing caveat. Returns false
// when degradation is disabled, in which case the run fails instead.
func (o *Orchestrator) degrade(r *run, agentType proto.AgentType, caveat string) bool {
	if !o.cfg.EnableDegradation {
		o.fail(r, fmt.Sprintf("%s stage failed and degradation is disabled", agentType))
		return false
	}
	logx.Warnf("run %s degrading past %s stage", r.id, agentType)
	o.recorder.IncDegradation(string(agentType))
	r.caveats = append(r.caveats, caveat)
	return true
}

// fail emits the terminal error event.
func (o *Orchestrator) fail(r *run, message string) string {
	r.stream.Emit(proto.NewErrorEvent(message))
	return "error"
}

func (o *Orchestrator) spawn(r *run, p proto.SpawnPayload) {
	r.stream.Emit(proto.NewSpawnEvent(p))
}

// deps assembles the run-scoped stage dependencies. A nil Client means the
// provider could not serve the stage; callers treat that as a stage failure.
func (o *Orchestrator) deps(r *run, agentType proto.AgentType) stages.Deps {
	client, err := o.clients.ClientFor(agentType)
	if err != nil {
		logx.Errorf("no client for %s: %v", agentType, err)
		client = nil
	}
	return stages.Deps{
		Client:   client,
		Counter:  o.counter,
		Acc:      r.acc,
		Events:   r.stream,
		Recorder: o.recorder,
	}
}

func (o *Orchestrator) clientFailure(r *run, agentID string, agentType proto.AgentType) *resilience.StageFailure {
	r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusError))
	o.recorder.ObserveStage(string(agentType), "", "error", "no_client", 0, 0, 0, 0)
	return &resilience.StageFailure{
		AgentType: agentType,
		Reason:    resilience.ReasonNonRetryable,
		Err:       fmt.Errorf("no client for %s", agentType),
	}
}

// observe wraps a stage call with the resilience executor and records stage
// metrics from the usage records the call added.
func observe[T any](ctx context.Context, o *Orchestrator, r *run, agentID string, agentType proto.AgentType, model string, fn func(ctx context.Context) (T, error)) (T, *resilience.StageFailure) {
	before := len(r.acc.Records())
	start := time.Now()

	result, failure := resilience.Execute(ctx, o.executor, agentType, fn)
	duration := time.Since(start)

	status, errType := "ok", ""
	if failure != nil {
		status = "error"
		errType = string(failure.Reason)
		if failure.Reason == resilience.ReasonCircuitOpen {
			o.recorder.IncBreakerOpen(string(agentType))
		}
		r.stream.Emit(proto.NewStatusEvent(agentID, proto.StatusError))
	}

	records := r.acc.Records()
	observed := false
	for i := before; i < len(records); i++ {
		rec := records[i]
		o.recorder.ObserveStage(string(rec.AgentType), rec.Model, status, errType,
			rec.PromptTokens, rec.CompletionTokens, usage.CostUSD(&rec), duration)
		observed = true
	}
	if !observed {
		o.recorder.ObserveStage(string(agentType), model, status, errType, 0, 0, 0, duration)
	}
	return result, failure
}

// agentColors matches the UI palette per stage kind.
var agentColors = map[proto.AgentType]string{
	proto.AgentResearch:    "cyan",
	proto.AgentPlanner:     "yellow",
	proto.AgentValidator:   "magenta",
	proto.AgentSynthesizer: "green",
	proto.AgentCurious:     "blue",
}
