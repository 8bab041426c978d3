package engine

// commandKind enumerates the asynchronous control messages. Commands are
// enqueued from any goroutine and applied exclusively at frame boundaries.
type commandKind int

const (
	cmdSetMode commandKind = iota
	cmdSetConfigs
	cmdGetStats
	cmdStartDebug
	cmdStopDebug
	cmdReset
	cmdExportFilter
	cmdRemeasure
)

type command struct {
	kind    commandKind
	mode    string
	target  string
	configs map[string]Params

	statsReply  chan Stats
	tracksReply chan TrackDump
	exportReply chan FilterExport
}

// enqueue attempts to queue a command without blocking. A full queue drops
// the command; control messages must never stall, and the audio path drains
// the queue every logical frame.
func (e *Engine) enqueue(cmd command) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		e.logger.Warn().Int("kind", int(cmd.kind)).Msg("command queue full, dropping")
		return false
	}
}

// SetMode requests a switch to the named strategy. Unknown names are logged
// and ignored at the frame boundary, leaving the previous mode active.
func (e *Engine) SetMode(name string) {
	e.enqueue(command{kind: cmdSetMode, mode: name})
}

// SetConfigs applies parameter deltas to any subset of strategies and
// optionally switches the active mode. An empty mode leaves the mode alone.
func (e *Engine) SetConfigs(mode string, configs map[string]Params) {
	e.enqueue(command{kind: cmdSetConfigs, mode: mode, configs: configs})
}

// DefaultConfigs returns the default parameter set for every registered
// strategy. The registry is immutable after construction, so no round trip
// through the audio path is needed.
func (e *Engine) DefaultConfigs() map[string]Params {
	return e.registry.Defaults()
}

// Stats returns an aggregate snapshot taken at the next frame boundary.
// It blocks until the audio callback runs; do not call it when processing
// is stopped.
func (e *Engine) Stats() Stats {
	reply := make(chan Stats, 1)
	if !e.enqueue(command{kind: cmdGetStats, statsReply: reply}) {
		return Stats{}
	}
	return <-reply
}

// StartDebugRecording begins capturing the near-end, far-end and output
// tracks plus any strategy-specific tracks, starting at the next frame
// boundary.
func (e *Engine) StartDebugRecording() {
	e.enqueue(command{kind: cmdStartDebug})
}

// StopDebugRecording stops capture at the next frame boundary and returns
// the recorded tracks, truncated to the samples actually written.
func (e *Engine) StopDebugRecording() TrackDump {
	reply := make(chan TrackDump, 1)
	if !e.enqueue(command{kind: cmdStopDebug, tracksReply: reply}) {
		return TrackDump{SampleRate: e.cfg.SampleRate}
	}
	return <-reply
}

// ResetStrategy reinitializes the named strategy's learned state without
// changing its configuration. Strategies without resettable state ignore it.
func (e *Engine) ResetStrategy(target string) {
	e.enqueue(command{kind: cmdReset, target: target})
}

// ExportFilter returns the named strategy's learned filter coefficients,
// captured at the next frame boundary. Strategies without an exportable
// filter yield a zero-valued export.
func (e *Engine) ExportFilter(target string) FilterExport {
	reply := make(chan FilterExport, 1)
	if !e.enqueue(command{kind: cmdExportFilter, target: target, exportReply: reply}) {
		return FilterExport{}
	}
	return <-reply
}

// Remeasure forces the named strategy to re-run its measurement phase.
func (e *Engine) Remeasure(target string) {
	e.enqueue(command{kind: cmdRemeasure, target: target})
}

// drainCommands applies every queued command. Called only at frame
// boundaries so that each frame runs under one consistent configuration.
func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.commands:
			e.apply(cmd)
		default:
			return
		}
	}
}

func (e *Engine) apply(cmd command) {
	switch cmd.kind {
	case cmdSetMode:
		e.switchMode(cmd.mode)

	case cmdSetConfigs:
		for name, delta := range cmd.configs {
			s, ok := e.strategies[name]
			if !ok {
				e.logger.Error().Str("strategy", name).Msg("configure: unknown strategy")
				continue
			}

			if err := s.Configure(delta); err != nil {
				e.logger.Error().Err(err).Str("strategy", name).Msg("configure failed")
			}
		}

		if cmd.mode != "" {
			e.switchMode(cmd.mode)
		}

	case cmdGetStats:
		cmd.statsReply <- e.snapshotStats()

	case cmdStartDebug:
		e.startCapture()

	case cmdStopDebug:
		cmd.tracksReply <- e.stopCapture()

	case cmdReset:
		if s, ok := e.strategies[cmd.target]; ok {
			if r, ok := s.(StateResetter); ok {
				r.ResetState()
			}
		} else {
			e.logger.Error().Str("strategy", cmd.target).Msg("reset: unknown strategy")
		}

	case cmdExportFilter:
		var export FilterExport
		if s, ok := e.strategies[cmd.target]; ok {
			if ex, ok := s.(FilterExporter); ok {
				export = ex.ExportFilter()
			}
		}
		cmd.exportReply <- export

	case cmdRemeasure:
		if s, ok := e.strategies[cmd.target]; ok {
			if m, ok := s.(Remeasurer); ok {
				m.Remeasure()
			}
		} else {
			e.logger.Error().Str("strategy", cmd.target).Msg("remeasure: unknown strategy")
		}
	}
}
