// Package behavior holds the concrete behaviors compile strategies attach to
// blocks.
//
// Behaviors keep no mutable state in their structs. Every value that changes
// while a block runs lives in a memory cell whose reference the strategy
// allocated and injected at construction:
//
//	timer:state    TimerState   private   Timer
//	round:state    RoundState   public    LoopCoordinator
//	metric:reps    int64        inherited LoopCoordinator (REP_SCHEME)
//	loop:complete  bool         private   LoopCoordinator
//	effort:start   time.Time    private   EffortMetrics
//	block:error    BlockError   public    ErrorBehavior
//
// Other blocks and external readers locate public and inherited cells with
// memory.Find.
package behavior
