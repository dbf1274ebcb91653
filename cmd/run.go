package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/config"
	"github.com/nextlevelbuilder/tabpilot/internal/engine"
	"github.com/nextlevelbuilder/tabpilot/internal/script"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

func runCmd() *cobra.Command {
	var (
		pairs      []string
		paramsLine string
		detach     bool
		jsonOutput bool
		events     bool
		ask        bool
		remote     bool
	)
	cmd := &cobra.Command{
		Use:   "run <scriptId>",
		Short: "Execute a script against its target tab",
		Long: `Execute a script against its target tab.

Parameters override the script defaults. Values that parse as JSON (numbers,
booleans, arrays, objects) keep their type; everything else is a string.
The special parameter targetUrl overrides the script's target.

  tabpilot run send-message --param name=Sarah --param count=3
  tabpilot run send-message --params "name=Sarah city='New York'"`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			params, err := parseParams(paramsLine, pairs)
			if err != nil {
				fatalf("Error: %s", err)
			}
			if detach {
				params[engine.ParamDetachDebugger] = true
			}

			if ask {
				if err := askParams(mustConfig(), args[0], params); err != nil {
					fatalf("Error: %s", err)
				}
			}
			if remote {
				runRemote(args[0], params, jsonOutput, events)
				return
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			shutdownOTel := initOTelExporter(ctx, mustConfig())
			a := openApp(ctx, appOptions{})
			defer a.close()

			req := engine.ExecuteRequest{ScriptID: args[0], Params: params}
			if events {
				req.Events = printEvent
			}
			res, err := a.engine.ExecuteScript(ctx, req)
			if res == nil {
				fatalf("Error [%s]: %s", engine.Code(err), err)
			}

			printResult(res, jsonOutput)
			shutdownOTel(context.Background())
			if err != nil {
				a.close()
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "param", "p", nil, "parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&paramsLine, "params", "", "parameters as a shell-quoted list of name=value")
	cmd.Flags().BoolVar(&detach, "detach", false, "detach the debug session after the run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&events, "events", false, "print progress events as protocol frames")
	cmd.Flags().BoolVar(&ask, "ask", false, "prompt for script parameters not given on the command line")
	cmd.Flags().BoolVar(&remote, "remote", false, "run through a running `tabpilot serve --ws` so the session outlives this command")
	return cmd
}

// runRemote executes the script through the server. A failed run still
// carries its result in the error details.
func runRemote(scriptID string, params map[string]any, jsonOutput, events bool) {
	cfg := mustConfig()
	var onEvent func(*protocol.EventFrame)
	if events {
		onEvent = func(ev *protocol.EventFrame) {
			data, _ := json.Marshal(ev)
			fmt.Println(string(data))
		}
	}
	req := map[string]any{"scriptId": scriptID, "parameters": params}
	resp, err := gatewayRPC(cfg, protocol.MethodExecuteScript, req, remoteRunTimeout, onEvent)
	if err != nil {
		fatalf("Error: %s", err)
	}

	var payload any = resp.Payload
	if !resp.OK {
		if resp.Error == nil || resp.Error.Details == nil {
			rpcFailed(resp)
		}
		payload = resp.Error.Details
	}
	var res engine.Result
	if err := decodePayload(payload, &res); err != nil {
		fatalf("Error parsing response: %s", err)
	}
	printResult(&res, jsonOutput)
	if !resp.OK {
		os.Exit(1)
	}
}

const remoteRunTimeout = 10 * time.Minute

func printResult(res *engine.Result, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Print(renderResult(res))
}

// parseParams merges --params and --param values; later values win.
func parseParams(line string, pairs []string) (map[string]any, error) {
	all := []string{}
	if strings.TrimSpace(line) != "" {
		words, err := shellwords.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("parse --params: %w", err)
		}
		all = append(all, words...)
	}
	all = append(all, pairs...)

	params := make(map[string]any, len(all))
	for _, p := range all {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q: want name=value", p)
		}
		params[name] = paramValue(value)
	}
	return params, nil
}

func paramValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		if _, isString := v.(string); !isString {
			return v
		}
	}
	return s
}

// askParams prompts for every script parameter missing from params.
func askParams(cfg *config.Config, scriptID string, params map[string]any) error {
	store, err := script.NewStore(cfg.Scripts.Dir, 1)
	if err != nil {
		return err
	}
	s, err := store.Load(scriptID)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(s.Parameters))
	for name := range s.Parameters {
		if _, given := params[name]; !given {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		def := fmt.Sprint(s.Parameters[name])
		v, err := promptString(name, "default: "+def, def)
		if err != nil {
			return err
		}
		params[name] = paramValue(v)
	}
	return nil
}

var eventSeq int64

func printEvent(name string, payload any) {
	eventSeq++
	ev := protocol.NewEvent(name, payload)
	ev.Seq = eventSeq
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
