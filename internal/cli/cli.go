// Package cli parses the rehearse command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandInterview  Command = "interview"
	CommandStart      Command = "start"
	CommandSetup      Command = "setup"
	CommandChangeInfo Command = "change-info"
	CommandAnswer     Command = "answer"
	CommandMic        Command = "mic"
	CommandHint       Command = "hint"
	CommandSubmit     Command = "submit"
	CommandRetry      Command = "retry"
	CommandReset      Command = "reset"
	CommandStatus     Command = "status"
	CommandQuit       Command = "quit"
	CommandResume     Command = "resume"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// arity is the accepted argument count range; max < 0 means unbounded.
type arity struct{ min, max int }

var validCommands = map[Command]arity{
	CommandInterview:  {0, 0},
	CommandStart:      {0, 0},
	CommandSetup:      {3, 3},
	CommandChangeInfo: {0, 0},
	CommandAnswer:     {1, -1},
	CommandMic:        {0, 0},
	CommandHint:       {0, 0},
	CommandSubmit:     {0, 0},
	CommandRetry:      {0, 0},
	CommandReset:      {0, 0},
	CommandStatus:     {0, 0},
	CommandQuit:       {0, 0},
	CommandResume:     {1, 2},
	CommandDevices:    {0, 0},
	CommandDoctor:     {0, 0},
	CommandVersion:    {0, 0},
	CommandHelp:       {0, 0},
}

// Forwarded reports whether cmd is sent to the running interview over IPC.
func (c Command) Forwarded() bool {
	switch c {
	case CommandStart, CommandSetup, CommandChangeInfo, CommandAnswer, CommandMic,
		CommandHint, CommandSubmit, CommandRetry, CommandReset, CommandStatus, CommandQuit:
		return true
	default:
		return false
	}
}

type Parsed struct {
	Command    Command
	Args       []string
	ConfigPath string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			want, ok := validCommands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			rest := args[i+1:]
			if len(rest) < want.min {
				return Parsed{}, fmt.Errorf("command %q requires %d argument(s)", arg, want.min)
			}
			if want.max >= 0 && len(rest) > want.max {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			if cmd == CommandResume {
				if err := validateResume(rest); err != nil {
					return Parsed{}, err
				}
			}

			parsed.Command = cmd
			parsed.Args = append([]string(nil), rest...)
			parsed.ShowHelp = cmd == CommandHelp
			return parsed, nil
		}
	}

	return parsed, nil
}

func validateResume(args []string) error {
	switch args[0] {
	case "import":
		if len(args) != 2 {
			return errors.New("resume import requires a file path (or - for stdin)")
		}
	case "clear", "show":
		if len(args) != 1 {
			return fmt.Errorf("unexpected arguments after resume %s", args[0])
		}
	default:
		return fmt.Errorf("unknown resume action: %s", args[0])
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Session:
  interview                  Run an interview session in this terminal
  start                      Begin a session (setup or question loading)
  setup POSITION FIELD LEVEL Submit the interview info form
  change-info                Return to setup before the first question
  answer TEXT...             Replace the current answer text
  mic                        Start or stop microphone transcription
  hint                       Show or hide the current question hint
  submit                     Submit the current answer
  retry                      Retry a failed question load or evaluation
  reset                      Restart the interview with the same questions
  status                     Print the current session state
  quit                       End the running session

Setup:
  resume import FILE|-       Store a plain-text résumé for résumé-driven sessions
  resume show                Print the stored résumé
  resume clear               Remove the stored résumé
  devices                    List available input devices
  doctor                     Run configuration and environment checks
  version                    Print version information
  help                       Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/rehearse/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
