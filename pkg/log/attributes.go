package log

// Operation context.
const (
	// ComponentKey identifies the package emitting the record, e.g. "cpm".
	ComponentKey = "component"

	// OperationKey specifies the operation being performed.
	// Standard values: "predict", "fit", "evaluate", "synthesize".
	OperationKey = "operation"

	// RunIDKey identifies one invocation of a pipeline (a uuid string).
	RunIDKey = "run.id"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "phase"
)

// Data shape.
const (
	// SubjectsKey is the number of subjects (columns of the feature matrix).
	SubjectsKey = "data.subjects"

	// EdgesKey is the number of connectivity edges (rows of the feature matrix).
	EdgesKey = "data.edges"

	// RegionsKey is the number of brain regions of a simulated model.
	RegionsKey = "data.regions"
)

// Cross-validation.
const (
	FoldKey      = "cv.fold"
	SelectedKey  = "cv.selected_edges"
	ThresholdKey = "cv.threshold"
	FallbackKey  = "cv.fallback"
	WorkersKey   = "cv.workers"
)

// Results and performance.
const (
	// CorrelationKey is the Pearson r between predictions and observations.
	CorrelationKey = "metrics.r"
	PValueKey      = "metrics.p"
	LossKey        = "metrics.loss"
	IterationKey   = "opt.iteration"
	CouplingKey    = "model.g"
	DurationMsKey  = "perf.duration_ms"
)

// Error context.
const (
	ErrorKey      = "error"
	StacktraceKey = "stacktrace"
)

// Standard attribute values.
const (
	OperationPredict    = "predict"
	OperationFit        = "fit"
	OperationEvaluate   = "evaluate"
	OperationSynthesize = "synthesize"

	PhaseSelection  = "selection"
	PhaseRegression = "regression"
	PhaseScoring    = "scoring"
)
