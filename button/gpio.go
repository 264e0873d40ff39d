package button

import (
	"fmt"
	"time"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// GPIO drives a Detector from a GPIO character-device input line.
type GPIO struct {
	*Detector
	line     *gpiod.Line
	inverted bool
}

// OpenGPIO requests offset on chip as a pulled-up input with edge events.
// With inverted set the button is active low.
func OpenGPIO(chip string, offset int, inverted bool, det *Detector) (*GPIO, error) {
	g := &GPIO{Detector: det, inverted: inverted}
	line, err := gpiod.RequestLine(chip, offset,
		gpiod.AsInput,
		gpiod.WithPullUp,
		gpiod.WithBothEdges,
		gpiod.WithEventHandler(g.handleEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("request button line %s/%d: %w", chip, offset, err)
	}
	g.line = line

	v, err := line.Value()
	if err != nil {
		line.Close()
		return nil, fmt.Errorf("read button line %s/%d: %w", chip, offset, err)
	}
	det.Set(levelPressed(v, inverted), time.Now())
	return g, nil
}

func (g *GPIO) handleEvent(evt gpiod.LineEvent) {
	g.Set(edgePressed(evt.Type, g.inverted), time.Now())
}

// Close releases the line.
func (g *GPIO) Close() error {
	if g.line == nil {
		return nil
	}
	return g.line.Close()
}

func levelPressed(v int, inverted bool) bool {
	return (v == 1) != inverted
}

func edgePressed(t gpiod.LineEventType, inverted bool) bool {
	if inverted {
		return t == gpiod.LineEventFallingEdge
	}
	return t == gpiod.LineEventRisingEdge
}
