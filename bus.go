package gstpipeline

import (
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gstpipeline/internal/buserr"
)

// drainBus pops every pending bus message (up to maxDrainPerCall) and logs
// or counts it. Safe to call from the sample callback and from Open
// concurrently; the engine's bus is the only shared state.
func (p *Pipeline) drainBus() int {
	n := 0
	for ; n < maxDrainPerCall; n++ {
		msg, ok := p.eng.PopMessage()
		if !ok {
			break
		}
		p.handleMessage(msg)
	}
	return n
}

func (p *Pipeline) handleMessage(msg engine.Message) {
	log := logger()

	switch msg.Kind {
	case engine.MessageError:
		category := buserr.Classify(msg.Text, msg.Debug)
		p.busErrors[category].Inc()
		p.lastBusError.Store(msg.Text)
		log.Error("gstpipeline: bus error",
			"source", msg.Source,
			"error", msg.Text,
			"debug", msg.Debug,
			"category", category.String(),
			"state", p.State(),
		)

	case engine.MessageWarning:
		p.busWarnings.Inc()
		log.Warn("gstpipeline: bus warning",
			"source", msg.Source,
			"warning", msg.Text,
			"debug", msg.Debug,
		)

	case engine.MessageInfo:
		log.Info("gstpipeline: bus info", "source", msg.Source, "info", msg.Text)

	case engine.MessageEOS:
		log.Info("gstpipeline: bus end of stream", "source", msg.Source)

	case engine.MessageStateChanged:
		log.Debug("gstpipeline: element state changed", "source", msg.Source, "change", msg.Text)

	default:
		log.Debug("gstpipeline: bus message", "source", msg.Source, "kind", msg.Kind.String(), "text", msg.Text)
	}
}
