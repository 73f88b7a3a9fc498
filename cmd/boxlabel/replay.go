package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/menta2k/boxlabel"
	"github.com/menta2k/boxlabel/pkg/editor"
	"github.com/menta2k/boxlabel/pkg/imageio"
	"github.com/menta2k/boxlabel/pkg/labels"
	"github.com/menta2k/boxlabel/pkg/render"
	"github.com/menta2k/boxlabel/pkg/session"
	"github.com/menta2k/boxlabel/pkg/viewport"
)

// step is one line of an editing script, e.g. "down 120 80" or "key z meta"
type step struct {
	line int
	op   string
	args []string
}

// arity is the number of arguments each op takes; -1 means one or more
var arity = map[string]int{
	"down": 2, "move": 2, "up": 0, "leave": 0,
	"key":    -1,
	"select": 1, "deselect": 0, "class": 1, "relabel": 1, "nudge": 2,
	"undo": 0, "redo": 0,
	"zoom": 1, "pan": 2, "reset": 0,
	"expect": 1,
	"save":   0, "next": 0, "prev": 0,
}

// parseScript reads one op per line; blank lines and # comments are skipped
func parseScript(r io.Reader) ([]step, error) {
	var steps []step
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		op := strings.ToLower(fields[0])
		want, ok := arity[op]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown op %q", n, fields[0])
		}
		args := fields[1:]
		if want < 0 && len(args) == 0 {
			return nil, fmt.Errorf("line %d: %s needs an argument", n, op)
		}
		if want >= 0 && len(args) != want {
			return nil, fmt.Errorf("line %d: %s takes %d arguments, got %d", n, op, want, len(args))
		}
		steps = append(steps, step{line: n, op: op, args: args})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}

func (s step) number(i int) (float64, error) {
	v, err := strconv.ParseFloat(s.args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %q is not a number", s.line, s.op, s.args[i])
	}
	return v, nil
}

func (s step) integer(i int) (int, error) {
	v, err := strconv.Atoi(s.args[i])
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %q is not an integer", s.line, s.op, s.args[i])
	}
	return v, nil
}

func (s step) floats() (float64, float64, error) {
	a, err := s.number(0)
	if err != nil {
		return 0, 0, err
	}
	b, err := s.number(1)
	return a, b, err
}

func (s step) key() editor.Key {
	k := editor.Key{Name: s.args[0]}
	for _, mod := range s.args[1:] {
		switch strings.ToLower(mod) {
		case "ctrl":
			k.Ctrl = true
		case "meta", "cmd":
			k.Meta = true
		case "shift":
			k.Shift = true
		}
	}
	return k
}

// replayer feeds script steps into an editor. Pointer coordinates are screen
// pixels relative to the canvas origin.
type replayer struct {
	bus    *editor.KeyBus
	nav    int
	closed bool
}

func (r *replayer) onNext()     { r.nav = 1 }
func (r *replayer) onPrevious() { r.nav = -1 }
func (r *replayer) onClose()    { r.closed = true }

// apply runs one editor-level step
func (r *replayer) apply(ed *editor.Editor, s step) error {
	var bounds viewport.Bounds
	switch s.op {
	case "down", "move":
		x, y, err := s.floats()
		if err != nil {
			return err
		}
		if s.op == "down" {
			ed.PointerDown(x, y, bounds)
		} else {
			ed.PointerMove(x, y, bounds)
		}
	case "up":
		ed.PointerUp()
	case "leave":
		ed.PointerLeave()
	case "key":
		if !r.bus.Dispatch(s.key()) {
			log.Printf("line %d: key %s not handled", s.line, s.args[0])
		}
	case "select":
		i, err := s.integer(0)
		if err != nil {
			return err
		}
		if !ed.Select(i) {
			return fmt.Errorf("line %d: no box %d", s.line, i)
		}
	case "deselect":
		ed.Deselect()
	case "class":
		id, err := s.integer(0)
		if err != nil {
			return err
		}
		ed.SetClass(id)
	case "relabel":
		id, err := s.integer(0)
		if err != nil {
			return err
		}
		ed.RelabelSelected(id)
	case "nudge", "pan":
		dx, dy, err := s.floats()
		if err != nil {
			return err
		}
		if s.op == "nudge" {
			ed.NudgeSelected(dx, dy)
		} else {
			ed.Pan(dx, dy)
		}
	case "undo":
		ed.Undo()
	case "redo":
		ed.Redo()
	case "zoom":
		z, err := s.number(0)
		if err != nil {
			return err
		}
		ed.SetZoom(z)
	case "reset":
		ed.ResetView()
	case "expect":
		n, err := s.integer(0)
		if err != nil {
			return err
		}
		if got := len(ed.Boxes()); got != n {
			return fmt.Errorf("line %d: expected %d boxes, have %d", s.line, n, got)
		}
	default:
		return fmt.Errorf("line %d: %s is not an editor op", s.line, s.op)
	}
	return nil
}

// run drives a session through the script. Session-level ops and the N/P
// keys save before moving to another image.
func (r *replayer) run(ctx context.Context, sess *session.Session, steps []step) error {
	for _, s := range steps {
		var err error
		switch s.op {
		case "save":
			err = sess.Save(ctx)
		case "next":
			r.nav = 1
		case "prev":
			r.nav = -1
		default:
			sess.Do(func(ed *editor.Editor) { err = r.apply(ed, s) })
		}
		if err != nil {
			return err
		}

		if r.closed {
			log.Printf("line %d: editor closed", s.line)
			return nil
		}
		switch nav := r.nav; {
		case nav > 0:
			r.nav = 0
			err = sess.Next(ctx)
		case nav < 0:
			r.nav = 0
			err = sess.Previous(ctx)
		}
		if errors.Is(err, session.ErrEndOfList) {
			log.Printf("line %d: %v", s.line, err)
		} else if err != nil {
			return fmt.Errorf("line %d: %w", s.line, err)
		}
	}
	return nil
}

func runReplay(ctx context.Context, ws *boxlabel.Workspace, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	dataset, imagePath := imageFlags(fs)
	script := fs.String("script", "-", "script file, - for stdin")
	last := fs.String("frame", "", "write the last rendered frame to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireImage(fs, *dataset, *imagePath); err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if *script != "-" {
		f, err := os.Open(*script)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	steps, err := parseScript(in)
	if err != nil {
		return err
	}

	r := &replayer{bus: editor.NewKeyBus()}
	sink := render.NewSink(ws.Renderer())
	ed := ws.NewEditor(sink,
		editor.WithOnNext(r.onNext),
		editor.WithOnPrevious(r.onPrevious),
		editor.WithOnClose(r.onClose))
	sub := ed.Mount(r.bus)
	defer sub.Close()

	var opts []session.Option
	if lister, ok := ws.Store.(labels.Lister); ok {
		if images, err := lister.ListImages(ctx, *dataset); err == nil {
			opts = append(opts, session.WithImages(images))
		}
	}
	sess := ws.SessionFor(ed, opts...)
	defer sess.Close()

	if err := sess.Open(ctx, *dataset, *imagePath); err != nil {
		return err
	}
	if err := r.run(ctx, sess, steps); err != nil {
		return err
	}

	if *last != "" && sink.Last() != nil {
		if err := imageio.New().Save(sink.Last(), *last, "", ws.Config.Output.Quality, false); err != nil {
			return err
		}
		log.Printf("wrote %s after %d frames", *last, sink.Frames())
	}
	return nil
}
