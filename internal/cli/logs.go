package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"echogate/internal/models"
)

// logsClient talks to a running gateway's log endpoints.
type logsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func (c *logsClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &envelope)
		return &apiError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *logsClient) List(ctx context.Context, limit int) ([]models.ChatLog, error) {
	var resp struct {
		Data []models.ChatLog `json:"data"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, "/v1/logs?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *logsClient) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/v1/logs/"+strconv.FormatInt(id, 10), nil)
}

// serverURL turns a listen address such as ":8000" into a client base URL.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func logsCommand(opts *rootOptions) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect or delete persisted exchanges on a running gateway",
	}
	cmd.PersistentFlags().StringVar(&server, "server", "", "gateway base url (default: derived from server_address)")

	client := func() *logsClient {
		base := server
		if base == "" {
			base = opts.cfg.BasicConfig.ServerAddress
		}
		return &logsClient{
			baseURL: serverURL(base),
			apiKey:  opts.cfg.BasicConfig.APIKey,
			http:    &http.Client{Timeout: 15 * time.Second},
		}
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent exchanges, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := client().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMODEL\tCREATED\tUSER\tASSISTANT")
			for _, entry := range logs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", entry.ID, entry.Model,
					entry.CreatedAt.Format(time.RFC3339), preview(entry.UserMessage), preview(entry.AssistantMessage))
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries (1-100)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one exchange by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			if err := client().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 40 {
		return string(r[:39]) + "…"
	}
	return s
}
