package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/friday/internal/orchestrator"
)

// pipeline is the slice of [orchestrator.Orchestrator] the console drives.
type pipeline interface {
	Events() <-chan orchestrator.Event
	Status() orchestrator.Status
	Summary() string
	SubmitText(text string) bool
	RecordNow() bool
	StopRecording()
	ClearHistory()
	EnableWake(ctx context.Context) error
	DisableWake() error
	SetSensitivity(level string) error
	TestMicrophone(ctx context.Context) (orchestrator.MicReport, error)
	TestSpeakers(ctx context.Context) error
}

const consoleHelp = `Commands:
  /record            record a voice command now
  /stop              end the current recording
  /wake on|off       enable or disable wake-phrase detection
  /sensitivity LVL   set wake sensitivity (high, medium, low)
  /status            show pipeline status
  /summary           summarise the recent conversation
  /clear             clear the conversation history
  /mic               run a short microphone test
  /speakers          play a test tone
  /help              show this help
  /quit              exit
Any other line is sent to the assistant as a typed message.`

// console is the interactive terminal front end. It prints pipeline events
// and turns typed lines into pipeline commands.
type console struct {
	p    pipeline
	name string

	mu  sync.Mutex
	out io.Writer
}

func newConsole(p pipeline, name string, out io.Writer) *console {
	if name == "" {
		name = "Assistant"
	}
	return &console{p: p, name: name, out: out}
}

// Run prints events and reads commands from in until ctx is cancelled, in
// reaches EOF, or the user quits. It returns true when the user asked to
// quit.
func (c *console) Run(ctx context.Context, in io.Reader) bool {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.printEvents(ctx)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if c.handle(ctx, line) {
				return true
			}
		}
	}
}

// handle executes one input line and reports whether the user quit.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if !c.p.SubmitText(line) {
			c.printf("! busy, try again when the current reply has finished\n")
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return true
	case "help":
		c.printf("%s\n", consoleHelp)
	case "record":
		if !c.p.RecordNow() {
			c.printf("! busy, cannot start a recording now\n")
		}
	case "stop":
		c.p.StopRecording()
	case "clear":
		c.p.ClearHistory()
		c.printf("* conversation cleared\n")
	case "summary":
		c.printf("%s\n", c.p.Summary())
	case "status":
		c.printStatus(c.p.Status())
	case "wake":
		c.toggleWake(ctx, arg)
	case "sensitivity":
		if err := c.p.SetSensitivity(arg); err != nil {
			c.printf("! %v\n", err)
			return false
		}
		c.printf("* sensitivity set to %s\n", arg)
	case "mic":
		rep, err := c.p.TestMicrophone(ctx)
		if err != nil {
			c.printf("! microphone test failed: %v\n", err)
			return false
		}
		verdict := "ok"
		if !rep.OK {
			verdict = "too little audio"
		}
		c.printf("* microphone: %d frames, %s, peak %d, rms %.0f (%s)\n",
			rep.Frames, rep.Duration.Round(10*time.Millisecond), rep.Peak, rep.RMS, verdict)
	case "speakers":
		if err := c.p.TestSpeakers(ctx); err != nil {
			c.printf("! speaker test failed: %v\n", err)
			return false
		}
		c.printf("* test tone played\n")
	default:
		c.printf("! unknown command /%s, type /help\n", cmd)
	}
	return false
}

func (c *console) toggleWake(ctx context.Context, arg string) {
	var err error
	switch strings.ToLower(arg) {
	case "on":
		err = c.p.EnableWake(ctx)
	case "off":
		err = c.p.DisableWake()
	default:
		c.printf("! usage: /wake on|off\n")
		return
	}
	if err != nil {
		c.printf("! %v\n", err)
		return
	}
	c.printf("* wake detection %s\n", strings.ToLower(arg))
}

func (c *console) printEvents(ctx context.Context) {
	events := c.p.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.printEvent(ev)
		}
	}
}

func (c *console) printEvent(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventTurnAdded:
		who := "You"
		if ev.Turn.Role == orchestrator.RoleAssistant {
			who = c.name
		}
		c.printf("%s %s: %s\n", ev.Turn.Timestamp.Format("15:04:05"), who, ev.Turn.Text)
	case orchestrator.EventSystemMessage:
		mark := "*"
		switch ev.Severity {
		case orchestrator.SeverityWarning:
			mark = "!"
		case orchestrator.SeverityError:
			mark = "!!"
		}
		c.printf("%s %s\n", mark, ev.Message)
	case orchestrator.EventStateChanged:
		c.printf("[%s]\n", ev.To)
	}
}

func (c *console) printStatus(st orchestrator.Status) {
	wake := "off"
	if st.WakeEnabled {
		wake = "on"
	}
	c.printf("* state %s, wake %s", st.State, wake)
	if st.Sensitivity != "" {
		c.printf(" (%s, threshold %.2f)", st.Sensitivity, st.Threshold)
	}
	c.printf("\n")
	if len(st.Phrases) > 0 {
		c.printf("* wake phrases: %s\n", strings.Join(st.Phrases, ", "))
	}
	voice := st.SynthMode
	if st.SynthExhausted {
		voice += " (all voices failed on the last reply)"
	}
	c.printf("* voice: %s\n", voice)
	c.printf("* history: %d turns\n", st.HistoryLen)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
