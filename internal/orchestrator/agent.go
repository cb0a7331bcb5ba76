package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"codevolve/internal/arch"
	"codevolve/internal/budget"
	"codevolve/internal/config"
	"codevolve/internal/cost"
	"codevolve/internal/heal"
	"codevolve/internal/knowledge"
	"codevolve/internal/llm"
	"codevolve/internal/logging"
	"codevolve/internal/modify"
	"codevolve/internal/operator"
	"codevolve/internal/plan"
	"codevolve/internal/project"
	"codevolve/internal/store"
	"codevolve/internal/trace"
	"codevolve/internal/validate"
)

// Event is a progress notification emitted during Execute. Delivery is
// best-effort; slow consumers drop events rather than block the run.
type Event struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Options wires an agent. Store and Approver are optional: without a
// store there is no retrieval or lint aggregation, without an approver
// every above-threshold request is auto-approved.
type Options struct {
	Config   config.Config
	Client   llm.Client
	Store    *store.Store
	Approver budget.Approver
}

// Agent is the top-level orchestrator. One Agent serves many Execute
// calls; each call gets its own budget manager, cost tracker and
// operator so sessions never share counters.
type Agent struct {
	cfg       config.Config
	client    llm.Client
	registry  *llm.Registry
	store     *store.Store
	approver  budget.Approver
	estimator *cost.Estimator

	archEngine  *arch.Engine
	retriever   *knowledge.Retriever
	scorer      *knowledge.Scorer
	operational *validate.Operational

	events chan Event
	log    *zap.SugaredLogger
}

func New(opts Options) (*Agent, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("orchestrator requires an LLM client")
	}
	registry, err := llm.NewRegistry(opts.Config.LLM, opts.Client)
	if err != nil {
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}

	approver := opts.Approver
	if approver == nil {
		approver = budget.ApproverFunc(func(string, cost.Cost) bool { return true })
	}

	var retriever *knowledge.Retriever
	if opts.Store != nil {
		retriever = knowledge.NewRetriever(opts.Store)
	}

	return &Agent{
		cfg:         opts.Config,
		client:      opts.Client,
		registry:    registry,
		store:       opts.Store,
		approver:    approver,
		estimator:   cost.NewEstimator(),
		archEngine:  arch.NewEngine(),
		retriever:   retriever,
		scorer:      knowledge.NewScorer(),
		operational: validate.NewOperational(),
		events:      make(chan Event, 64),
		log:         logging.Get(logging.CategoryOrchestrator),
	}, nil
}

// Events exposes the progress stream.
func (a *Agent) Events() <-chan Event { return a.events }

func (a *Agent) emit(eventType, format string, args ...any) {
	ev := Event{Type: eventType, Message: fmt.Sprintf(format, args...), Time: time.Now().UTC()}
	select {
	case a.events <- ev:
	default:
	}
}

// session is the per-Execute wiring: fresh counters, fresh trajectory.
type session struct {
	state     *State
	manager   *budget.Manager
	op        *operator.Operator
	generator *plan.Generator
	executor  *modify.Executor
	quality   *validate.Quality
	healer    *heal.Controller
	language  string
	files     []string
}

func (a *Agent) newSession(obj Objective) (*session, error) {
	manager := budget.NewManager(a.cfg.Budget, a.estimator, a.approver)
	op := operator.New(operator.Config{
		Name:                 "orchestrator",
		OperationType:        "orchestration",
		Registry:             a.registry,
		Manager:              manager,
		Estimator:            a.estimator,
		Limits:               a.cfg.Limits,
		CallTimeout:          a.cfg.LLM.CallTimeout,
		AutoApproveThreshold: a.cfg.Budget.AutoApproveThreshold,
	})
	generator, err := plan.NewGenerator(op)
	if err != nil {
		return nil, err
	}
	return &session{
		state:     newState(obj),
		manager:   manager,
		op:        op,
		generator: generator,
		executor:  modify.NewExecutor(op, a.retriever, a.cfg.Limits.WorkerPoolSize),
		quality:   validate.NewQuality(op, a.store),
		healer:    heal.NewController(generator, a.retriever),
		language:  obj.Language,
	}, nil
}

// Execute runs the full state machine for one objective. It never
// panics outward: any internal failure becomes a reject result.
func (a *Agent) Execute(ctx context.Context, obj Objective) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorw("orchestration panicked", "panic", r)
			res = Result{
				Decision:     DecisionReject,
				Reason:       fmt.Sprintf("internal error: %v", r),
				ErrorDetails: string(debug.Stack()),
			}
		}
	}()

	// 1. Validate the objective before spending anything.
	if reason, ok := validateObjective(obj); !ok {
		return Result{Decision: DecisionReject, Reason: reason, Modifications: map[string]string{}}
	}

	sess, err := a.newSession(obj)
	if err != nil {
		return Result{Decision: DecisionReject, Reason: fmt.Sprintf("failed to initialize session: %v", err)}
	}
	a.emit("start", "executing objective in %s", obj.ProjectPath)

	// 3. Project context analysis.
	a.analyzeProject(sess, obj)

	// 4. Cache-backed knowledge retrieval.
	knowledgeApplied := a.retrieveKnowledge(ctx, sess, obj)

	// 5. Planning.
	if reason, ok := a.plan(ctx, sess, obj); !ok {
		return a.finish(sess, DecisionReject, reason, knowledgeApplied)
	}

	// 6. Modification execution.
	stepFailure := a.modify(ctx, sess)

	// 7. First validation round.
	a.validateRound(ctx, sess, obj)

	// 8. One healing round when anything failed.
	var escalation string
	if stepFailure != "" || !sess.state.QualityResults.Passed || !sess.state.SREResults.Passed {
		escalation, stepFailure = a.heal(ctx, sess, obj, stepFailure)
		a.validateRound(ctx, sess, obj)
	}

	// 9. Decision.
	passed := stepFailure == "" && sess.state.QualityResults.Passed && sess.state.SREResults.Passed
	if passed {
		if err := a.applyToDisk(sess, obj.ProjectPath); err != nil {
			res = a.finish(sess, DecisionReject, fmt.Sprintf("failed to apply modifications: %v", err), knowledgeApplied)
			res.Escalation = escalation
			return res
		}
		res = a.finish(sess, DecisionApprove, "", knowledgeApplied)
	} else {
		res = a.finish(sess, DecisionReject, rejectReason(sess.state, stepFailure), knowledgeApplied)
	}
	res.Escalation = escalation
	return res
}

func validateObjective(obj Objective) (string, bool) {
	var missing []string
	if strings.TrimSpace(obj.Task) == "" {
		missing = append(missing, "task")
	}
	if strings.TrimSpace(obj.ProjectPath) == "" {
		missing = append(missing, "project_path")
	}
	if len(missing) > 0 {
		return "Missing required fields: " + strings.Join(missing, ", "), false
	}
	if info, err := os.Stat(obj.ProjectPath); err != nil || !info.IsDir() {
		return fmt.Sprintf("project_path %q is not an existing directory", obj.ProjectPath), false
	}
	return "", true
}

func (a *Agent) analyzeProject(sess *session, obj Objective) {
	files, err := project.ListFiles(obj.ProjectPath)
	if err != nil {
		a.log.Warnw("file enumeration failed", "error", err)
	}
	sess.files = files

	archCtx := a.archEngine.Analyze(obj.Task, obj.OriginalIdea, files)
	sess.state.Analysis = archCtx
	sess.state.ArchitecturalContext = archCtx
	sess.state.SystemType = archCtx.SystemType
	sess.state.Constraints = archCtx.InjectConstraints(sess.state.Constraints)
	if sess.language == "" {
		sess.language = defaultLanguage(archCtx.SystemType)
	}

	sess.state.AddReasoningStep("Project Context Analysis",
		fmt.Sprintf("system type %s, pattern %s, %d existing files", archCtx.SystemType, archCtx.Pattern, len(files)),
		boolPtr(true))
	a.emit("phase_started", "project context analysis: system type %s", archCtx.SystemType)
}

func defaultLanguage(systemType string) string {
	switch systemType {
	case "cli_tool", "api_service", "library", "web_app", "fullstack_web_app":
		return "python"
	}
	return "python"
}

func (a *Agent) retrieveKnowledge(ctx context.Context, sess *session, obj Objective) bool {
	archCtx := sess.state.Analysis
	kc := a.cfg.Knowledge
	key := knowledge.CacheKey(obj.Task, archCtx.SystemType, archCtx.Pattern)

	retrieved, hit := "", false
	if kc.CacheEnabled {
		retrieved, hit = sess.state.KnowledgeCache[key]
	}
	if !hit {
		if a.retriever != nil {
			subs := append([]string{"best practices for " + archCtx.SystemType}, sess.state.Constraints...)
			retrieved = a.retriever.RetrieveComposite(ctx, obj.Task, subs, kc.TopK, kc.SubQueryTopK, kc.MaxContextTokens)
		}
		if kc.CacheEnabled {
			sess.state.KnowledgeCache[key] = retrieved
		}
	}
	sess.state.RetrievedContext = retrieved

	applied := retrieved != ""
	sess.state.AddReasoningStep("Knowledge Retrieval",
		fmt.Sprintf("cache key %q, %d chars of context", key, len(retrieved)), boolPtr(true))
	return applied
}

func (a *Agent) plan(ctx context.Context, sess *session, obj Objective) (string, bool) {
	phaseCtx, cancel := context.WithTimeout(ctx, a.cfg.Limits.PhaseTimeout)
	defer cancel()

	p, err := sess.generator.Generate(phaseCtx, plan.Request{
		Task:             obj.Task,
		Language:         sess.language,
		ProjectPath:      obj.ProjectPath,
		KnowledgeContext: sess.state.RetrievedContext,
		Arch:             sess.state.Analysis,
	})
	if err != nil {
		sess.state.AddReasoningStep("Modification Planning", err.Error(), boolPtr(false))
		return fmt.Sprintf("planning failed: %v", err), false
	}

	sess.state.ModificationPlan = p
	for _, w := range p.Warnings {
		sess.state.AddReasoningStep("Modification Planning", w, boolPtr(true))
	}
	sess.state.AddReasoningStep("Modification Planning",
		fmt.Sprintf("%d steps planned", len(p.Steps)), boolPtr(true))
	a.emit("phase_started", "modification: %d planned steps", len(p.Steps))
	return "", true
}

// modify runs the plan; a failed step is reported as an issue string
// for the healing round, not as a terminal error.
func (a *Agent) modify(ctx context.Context, sess *session) string {
	p := sess.state.ModificationPlan
	if len(p.Steps) == 0 {
		sess.state.AddReasoningStep("Code Modification", "empty plan; nothing to modify", boolPtr(true))
		return ""
	}

	phaseCtx, cancel := context.WithTimeout(ctx, a.cfg.Limits.PhaseTimeout)
	defer cancel()

	mres, err := sess.executor.Execute(phaseCtx, p, sess.state.ProjectPath, sess.language)
	sess.state.ModificationResult = mres
	sess.state.ModifiedFiles = mres.ModifiedFiles

	if err != nil {
		sess.state.AddReasoningStep("Code Modification", err.Error(), boolPtr(false))
		return fmt.Sprintf("modification failed: %v", err)
	}
	if mres.FailedStep != nil {
		failure := fmt.Sprintf("step %q on %s failed: %s", mres.FailedStep.What, mres.FailedStep.File, mres.Error)
		sess.state.AddReasoningStep("Code Modification", failure, boolPtr(false))
		return failure
	}

	sess.state.AddReasoningStep("Code Modification",
		fmt.Sprintf("%d files modified, %d queued for deletion", len(mres.ModifiedFiles), len(mres.FilesToDelete)),
		boolPtr(true))
	a.emit("step_recorded", "%d files modified", len(mres.ModifiedFiles))
	return ""
}

func (a *Agent) validateRound(ctx context.Context, sess *session, obj Objective) {
	phaseCtx, cancel := context.WithTimeout(ctx, a.cfg.Limits.PhaseTimeout)
	defer cancel()

	qr := sess.quality.Validate(phaseCtx, obj.Task, sess.state.ModifiedFiles, sess.language)
	sess.state.QualityResults = qr
	sess.state.AddReasoningStep("Quality Validation",
		fmt.Sprintf("%d issues", len(qr.Issues)), boolPtr(qr.Passed))

	sre := a.operational.Validate(phaseCtx, sess.state.ModifiedFiles, sess.files, obj.ProjectPath, sess.language)
	sess.state.SREResults = sre
	sess.state.AddReasoningStep("Operational Validation",
		fmt.Sprintf("%d issues", len(sre.Issues)), boolPtr(sre.Passed))
}

// heal runs the single recovery round and returns any escalation block
// plus the (possibly cleared) step failure.
func (a *Agent) heal(ctx context.Context, sess *session, obj Objective, stepFailure string) (string, string) {
	issues := append([]string{}, sess.state.QualityResults.Issues...)
	issues = append(issues, sess.state.SREResults.Issues...)
	if stepFailure != "" {
		issues = append(issues, stepFailure)
	}

	outcome, err := sess.healer.ExecuteSelfHealing(ctx, heal.Request{
		Task:          obj.Task,
		ProjectPath:   obj.ProjectPath,
		Language:      sess.language,
		Arch:          sess.state.Analysis,
		ModifiedFiles: sess.state.ModifiedFiles,
		Issues:        issues,
	})
	if err != nil {
		sess.state.AddReasoningStep("Self-Healing", err.Error(), boolPtr(false))
		return "", stepFailure
	}

	sess.state.ModifiedFiles = outcome.ModifiedFiles
	sess.state.SetExtra("healing_analysis", outcome.Analysis)

	if outcome.NewPlan != nil {
		sess.state.ModificationPlan = *outcome.NewPlan
		if failure := a.modify(ctx, sess); failure != "" {
			sess.state.AddReasoningStep("Self-Healing", "replanned execution failed: "+failure, boolPtr(false))
			return outcome.Escalation, failure
		}
		stepFailure = ""
	} else if outcome.Applied {
		stepFailure = ""
	}

	sess.state.AddReasoningStep("Self-Healing",
		fmt.Sprintf("strategy %s (confidence %.2f)", outcome.Analysis.Strategy, outcome.Analysis.Confidence),
		boolPtr(outcome.Applied))
	a.emit("heal_triggered", "strategy %s", outcome.Analysis.Strategy)
	return outcome.Escalation, stepFailure
}

func (a *Agent) applyToDisk(sess *session, projectPath string) error {
	paths := make([]string, 0, len(sess.state.ModifiedFiles))
	for p := range sess.state.ModifiedFiles {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		full := filepath.Join(projectPath, filepath.FromSlash(p))
		if err := project.WriteFileAtomic(full, []byte(sess.state.ModifiedFiles[p]+"\n")); err != nil {
			return err
		}
	}
	// Deletions run after all writes.
	for _, p := range sess.state.ModificationResult.FilesToDelete {
		full := filepath.Join(projectPath, filepath.FromSlash(p))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func rejectReason(state *State, stepFailure string) string {
	var parts []string
	if stepFailure != "" {
		parts = append(parts, stepFailure)
	}
	parts = append(parts, state.QualityResults.Issues...)
	parts = append(parts, state.SREResults.Issues...)
	if len(parts) == 0 {
		parts = append(parts, "validation failed")
	}
	return strings.Join(parts, "; ")
}

// finish freezes the operation, scores knowledge application and
// assembles the sanitized result.
func (a *Agent) finish(sess *session, decision, reason string, knowledgeApplied bool) Result {
	passed := decision == DecisionApprove
	sess.state.AddReasoningStep("Final Decision", decisionDescription(decision, reason), boolPtr(passed))

	res := Result{
		Decision:            decision,
		Reason:              reason,
		Modifications:       modificationSummaries(sess.state),
		QualityResults:      sess.state.QualityResults,
		SREResults:          sess.state.SREResults,
		ReasoningTrajectory: sess.state.ReasoningTrajectory,
		KnowledgeApplied:    knowledgeApplied,
	}

	if knowledgeApplied && len(sess.state.ModifiedFiles) > 0 {
		var bodies []string
		for _, p := range sortedPaths(sess.state.ModifiedFiles) {
			bodies = append(bodies, sess.state.ModifiedFiles[p])
		}
		score := a.scorer.Score(strings.Join(bodies, "\n\n"), "code_generation")
		sess.state.KnowledgeEffectiveness = append(sess.state.KnowledgeEffectiveness, score)
		res.KnowledgeApplicationScore = &score.OverallScore
		res.KnowledgeFeedback = score.Feedback
	}

	record := sess.op.Tracker().CompleteOperation(passed, map[string]any{
		"decision": decision,
		"reason":   reason,
	})
	res.OperationID = record.OperationID
	if err := trace.SaveOperation(sess.state.ProjectPath, record); err != nil {
		a.log.Warnw("failed to persist operation record", "error", err)
	}

	consumed := sess.manager.SessionConsumption()
	a.emit("decision", "%s ($%.4f across %d tokens)", decision, consumed.Totals.Amount, consumed.Totals.Tokens)
	return res
}

func decisionDescription(decision, reason string) string {
	if reason == "" {
		return decision
	}
	return decision + ": " + reason
}

func modificationSummaries(state *State) map[string]string {
	summaries := map[string]string{}
	whatByFile := map[string]string{}
	for _, s := range state.ModificationPlan.Steps {
		whatByFile[s.File] = s.What
	}
	for p, content := range state.ModifiedFiles {
		what := whatByFile[p]
		if what == "" {
			what = "modified"
		}
		summaries[p] = fmt.Sprintf("%s (%d bytes)", what, len(content))
	}
	for _, p := range state.ModificationResult.FilesToDelete {
		summaries[p] = "deleted"
	}
	return summaries
}

func sortedPaths(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
