package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/vango-dev/vango-live/internal/errors"
	"github.com/vango-dev/vango-live/pkg/client"
	"github.com/vango-dev/vango-live/pkg/client/dom"
	"github.com/vango-dev/vango-live/pkg/markup"
	"github.com/vango-dev/vango-live/pkg/protocol"
)

type connectOptions struct {
	page    string
	url     string
	session string
}

func connectCmd(g *globals) *cobra.Command {
	opts := &connectOptions{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Bind a headless client to a served page",
		Long: `Connect fetches a page rendered by "vango-live serve", binds its
components, and opens the live channel. Commands are read from stdin:

  click <element-id>           dispatch a click
  input <element-id> <text>    type text into an input
  change <element-id>          dispatch a change
  submit <element-id>          submit the enclosing form
  show [component-id]          print component markup
  components                   list bound components
  quit                         disconnect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			doc, wsURL, err := fetchPage(ctx, opts.page)
			if err != nil {
				return errors.New(errors.CodeConnect).WithField(opts.page).Wrap(err)
			}
			if cmd.Flags().Changed("url") {
				wsURL = opts.url
			}

			out := cmd.OutOrStdout()
			var mgr *client.Manager
			binder := dom.NewBinder(doc, senderFunc(func(id, method string, event map[string]any) error {
				return mgr.Action(id, method, event)
			}), dom.WithLogger(logger))

			cc := cfg.ClientConfig(logger)
			cc.URL = wsURL
			cc.SessionID = firstNonEmpty(opts.session, cfg.Client.SessionID, uuid.NewString())
			if len(cc.Components) == 0 {
				cc.Components = binder.Components()
			}
			cc.OnUpdate = func(u protocol.Update) {
				if err := binder.Apply(u); err != nil {
					logger.Warn("update not applied", "component_id", u.ComponentID, "error", err)
					return
				}
				fmt.Fprintf(out, "updated %s\n", u.ComponentID)
			}
			cc.OnError = func(msg *protocol.Message) {
				fmt.Fprintf(out, "error %s: %s\n", msg.ErrorCode, msg.Message)
			}
			cc.OnEval = func(code string) { fmt.Fprintf(out, "eval %s\n", code) }
			cc.OnReload = func() { fmt.Fprintln(out, "reload requested") }
			cc.OnStateChange = func(from, to client.State) {
				logger.Info("connection state", "from", from.String(), "to", to.String())
			}

			mgr = client.New(cc)
			if err := mgr.Start(ctx); err != nil && cc.DisableReconnect {
				return errors.New(errors.CodeConnect).WithField(wsURL).Wrap(err)
			}
			defer mgr.Close()

			info("Session %s, components: %s", cc.SessionID, strings.Join(cc.Components, ", "))
			return repl(ctx, cmd.InOrStdin(), out, binder)
		},
	}

	cmd.Flags().StringVarP(&opts.page, "page", "p", "http://localhost:8080/", "Page served by vango-live serve")
	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "WebSocket URL (default: from the page)")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Session id (default: random)")
	return cmd
}

type senderFunc func(componentID, method string, event map[string]any) error

func (f senderFunc) Action(componentID, method string, event map[string]any) error {
	return f(componentID, method, event)
}

// fetchPage loads and parses the page, resolving the WebSocket URL from its
// live-ws meta tag.
func fetchPage(ctx context.Context, pageURL string) (*dom.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("GET %s: %s", pageURL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	doc, err := dom.Parse(string(body))
	if err != nil {
		return nil, "", err
	}
	ws, err := resolveWebSocketURL(pageURL, webSocketPath(doc.Root()))
	if err != nil {
		return nil, "", err
	}
	return doc, ws, nil
}

func resolveWebSocketURL(pageURL, wsPath string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	if wsPath == "" {
		wsPath = "/components/ws"
	}
	ref, err := url.Parse(wsPath)
	if err != nil {
		return "", err
	}
	u = u.ResolveReference(ref)
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// repl runs stdin commands against the binder until quit or EOF.
func repl(ctx context.Context, in io.Reader, out io.Writer, b *dom.Binder) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		verb, args := fields[0], fields[1:]
		switch verb {
		case "quit", "exit":
			return nil
		case "components":
			fmt.Fprintln(out, strings.Join(b.Components(), " "))
		case "show":
			ids := args
			if len(ids) == 0 {
				ids = b.Components()
			}
			for _, id := range ids {
				s, err := b.Render(id)
				if err != nil {
					fmt.Fprintln(out, err)
					continue
				}
				fmt.Fprintln(out, s)
			}
		case dom.EventClick, dom.EventChange, dom.EventSubmit, dom.EventInput:
			if len(args) == 0 {
				fmt.Fprintf(out, "usage: %s <element-id>\n", verb)
				continue
			}
			target := b.Find(func(n *html.Node) bool {
				v, ok := markup.Attr(n, "id")
				return n.Type == html.ElementNode && ok && v == args[0]
			})
			if target == nil {
				fmt.Fprintf(out, "no element %q\n", args[0])
				continue
			}
			ev := dom.Event{Type: verb, Target: target}
			if verb == dom.EventInput {
				value := strings.Join(args[1:], " ")
				ev.Value = &value
				b.Focus(target, utf8.RuneCountInString(value))
			}
			res, err := b.Dispatch(ev)
			switch {
			case err != nil:
				fmt.Fprintln(out, err)
			case res.Sent:
				fmt.Fprintf(out, "sent %s.%s\n", res.ComponentID, res.Method)
			default:
				fmt.Fprintf(out, "no %s action on %q\n", verb, args[0])
			}
		default:
			fmt.Fprintf(out, "unknown command %q\n", verb)
		}
	}
	return sc.Err()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
