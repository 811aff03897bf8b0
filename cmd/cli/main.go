package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(args)
	case "equipment":
		err = handleEquipment(args)
	case "reserve":
		err = createReservation(args)
	case "reservation":
		err = handleReservation(args)
	case "audit":
		err = listAudit(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: gearpool auth <login|logout|who>")
		return nil
	}
	switch args[0] {
	case "login":
		return login(args[1:])
	case "logout":
		return logout()
	case "who":
		s := loadSession()
		if s.Token == "" {
			fmt.Println("Not logged in")
			return nil
		}
		fmt.Printf("✓ Logged in as %s (%s) in tenant %s\n", s.UserID, s.Role, s.TenantID)
		return nil
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func handleEquipment(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: gearpool equipment <list|availability>")
		return nil
	}
	switch args[0] {
	case "list":
		return listEquipment(args[1:])
	case "availability":
		return checkAvailability(args[1:])
	default:
		return fmt.Errorf("unknown equipment command: %s", args[0])
	}
}

func handleReservation(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: gearpool reservation <list|get|approve|reject|cancel|checkout|checkin> [id]")
		return nil
	}
	switch args[0] {
	case "list":
		return listReservations(args[1:])
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("usage: gearpool reservation get <id>")
		}
		var res map[string]any
		if err := newClient().do(http.MethodGet, tenantPath("/reservations/"+args[1]), nil, &res); err != nil {
			return err
		}
		return printJSON(res)
	case "approve", "reject", "cancel", "checkout", "checkin":
		return transition(args[0], args[1:])
	default:
		return fmt.Errorf("unknown reservation command: %s", args[0])
	}
}

// Auth commands
func login(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("email and password are required")
	}

	var result session
	payload := map[string]string{"email": *email, "password": *password}
	if err := newClient().do(http.MethodPost, "/auth/login", payload, &result); err != nil {
		return err
	}
	if err := saveSession(result); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as: %s\n", *email)
	return nil
}

func logout() error {
	if loadSession().Token != "" {
		if err := newClient().do(http.MethodPost, "/auth/logout", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "warning: server logout failed: %v\n", err)
		}
	}
	os.Remove(sessionFile())
	fmt.Println("✓ Logged out")
	return nil
}

// Equipment commands
func listEquipment(args []string) error {
	fs := flag.NewFlagSet("equipment list", flag.ExitOnError)
	category := fs.String("category", "", "filter by category")
	fs.Parse(args)

	q := url.Values{}
	if *category != "" {
		q.Set("category", *category)
	}
	var out struct {
		Equipment []struct {
			ID            string `json:"id"`
			Category      string `json:"category"`
			Name          string `json:"name"`
			TotalQuantity int    `json:"totalQuantity"`
			Condition     string `json:"condition"`
			IsActive      bool   `json:"isActive"`
		} `json:"equipment"`
	}
	if err := newClient().do(http.MethodGet, tenantPath("/equipment?"+q.Encode()), nil, &out); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tNAME\tQTY\tCONDITION\tACTIVE")
	for _, e := range out.Equipment {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%t\n", e.ID, e.Category, e.Name, e.TotalQuantity, e.Condition, e.IsActive)
	}
	return w.Flush()
}

func checkAvailability(args []string) error {
	fs := flag.NewFlagSet("availability", flag.ExitOnError)
	id := fs.String("id", "", "equipment id")
	start := fs.String("start", "", "start (RFC 3339 or YYYY-MM-DD)")
	end := fs.String("end", "", "end (RFC 3339 or YYYY-MM-DD)")
	quantity := fs.Int("quantity", 1, "units wanted")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	q := url.Values{"startDate": {*start}, "endDate": {*end}, "quantity": {fmt.Sprint(*quantity)}}
	var out map[string]any
	if err := newClient().do(http.MethodGet, tenantPath("/equipment/"+*id+"/availability?"+q.Encode()), nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

// Reservation commands
func createReservation(args []string) error {
	fs := flag.NewFlagSet("reserve", flag.ExitOnError)
	items := fs.String("items", "", "comma separated equipmentId[:quantity] list")
	start := fs.String("start", "", "start (RFC 3339)")
	end := fs.String("end", "", "end (RFC 3339)")
	purpose := fs.String("purpose", "", "what the equipment is for")
	fs.Parse(args)

	lines, err := parseItems(*items)
	if err != nil {
		return err
	}
	startAt, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	endAt, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}

	payload := map[string]any{
		"startDate": startAt,
		"endDate":   endAt,
		"purpose":   *purpose,
		"items":     lines,
	}
	var res map[string]any
	if err := newClient().do(http.MethodPost, tenantPath("/reservations"), payload, &res); err != nil {
		return err
	}
	fmt.Printf("✓ Reservation %v is %v\n", res["id"], res["status"])
	return nil
}

func parseItems(s string) ([]map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("-items is required")
	}
	var lines []map[string]any
	for _, part := range strings.Split(s, ",") {
		id, qty, _ := strings.Cut(strings.TrimSpace(part), ":")
		n := 1
		if qty != "" {
			if _, err := fmt.Sscanf(qty, "%d", &n); err != nil {
				return nil, fmt.Errorf("invalid quantity in %q", part)
			}
		}
		lines = append(lines, map[string]any{"equipmentId": id, "quantity": n})
	}
	return lines, nil
}

func listReservations(args []string) error {
	fs := flag.NewFlagSet("reservation list", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	fs.Parse(args)

	q := url.Values{}
	if *status != "" {
		q.Set("status", *status)
	}
	var out struct {
		Reservations []struct {
			ID       string `json:"id"`
			UserID   string `json:"userId"`
			Status   string `json:"status"`
			Version  int64  `json:"version"`
			Interval struct {
				Start time.Time `json:"startDate"`
				End   time.Time `json:"endDate"`
			} `json:"interval"`
		} `json:"reservations"`
	}
	if err := newClient().do(http.MethodGet, tenantPath("/reservations?"+q.Encode()), nil, &out); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tSTATUS\tVERSION\tSTART\tEND")
	for _, r := range out.Reservations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.UserID, r.Status, r.Version,
			r.Interval.Start.Format(time.RFC3339), r.Interval.End.Format(time.RFC3339))
	}
	return w.Flush()
}

func transition(action string, args []string) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	version := fs.Int64("version", 0, "expected reservation version (0 skips the check)")
	note := fs.String("note", "", "decision note")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: gearpool reservation %s [-version n] [-note text] <id>", action)
	}
	id := fs.Arg(0)
	payload := map[string]any{"expectedVersion": *version, "note": *note}
	var res map[string]any
	if err := newClient().do(http.MethodPost, tenantPath("/reservations/"+id+"/"+action), payload, &res); err != nil {
		return err
	}
	fmt.Printf("✓ Reservation %s is now %v (version %v)\n", id, res["status"], res["version"])
	return nil
}

// Audit commands
func listAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	resource := fs.String("resource", "", "filter by resource id")
	limit := fs.Int("limit", 50, "max entries")
	fs.Parse(args)

	q := url.Values{"limit": {fmt.Sprint(*limit)}}
	if *resource != "" {
		q.Set("resourceId", *resource)
	}
	var out struct {
		Entries []struct {
			Sequence     int64     `json:"sequence"`
			ActorID      string    `json:"actorId"`
			Action       string    `json:"action"`
			ResourceType string    `json:"resourceType"`
			ResourceID   string    `json:"resourceId"`
			Result       string    `json:"result"`
			CreatedAt    time.Time `json:"createdAt"`
		} `json:"entries"`
	}
	if err := newClient().do(http.MethodGet, tenantPath("/audit?"+q.Encode()), nil, &out); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tWHEN\tACTOR\tACTION\tRESOURCE\tRESULT")
	for _, e := range out.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s/%s\t%s\n", e.Sequence, e.CreatedAt.Format(time.RFC3339),
			e.ActorID, e.Action, e.ResourceType, e.ResourceID, e.Result)
	}
	return w.Flush()
}

// Helper functions
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient() *client {
	return &client{baseURL: getAPIURL(), token: loadSession().Token, http: &http.Client{Timeout: 15 * time.Second}}
}

// do sends body as JSON and decodes a 2xx response into out. Error
// envelopes are turned into errors carrying the server's code.
func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
			return fmt.Errorf("request failed: %s", resp.Status)
		}
		if len(env.Error.Details) > 0 {
			details, _ := json.Marshal(env.Error.Details)
			return fmt.Errorf("%s: %s %s", env.Error.Code, env.Error.Message, details)
		}
		return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getAPIURL() string {
	if u := os.Getenv("GEARPOOL_API"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080/api/v1"
}

func tenantPath(suffix string) string {
	return "/tenants/" + loadSession().TenantID + suffix
}

type session struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

func sessionFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gearpool", "session.json")
}

func saveSession(s session) error {
	if err := os.MkdirAll(filepath.Dir(sessionFile()), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(sessionFile(), data, 0600)
}

func loadSession() session {
	var s session
	data, err := os.ReadFile(sessionFile())
	if err != nil {
		return s
	}
	_ = json.Unmarshal(data, &s)
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Print(`Gear-Pool CLI

Usage:
  gearpool <command> [options]

Commands:
  auth         Authentication (login, logout, who)
  equipment    Catalog (list, availability)
  reserve      Request equipment for an interval
  reservation  Reservations (list, get, approve, reject, cancel, checkout, checkin)
  audit        Tenant audit trail (manager or above)
  help         Show this help message

Environment Variables:
  GEARPOOL_API    API endpoint (default: http://localhost:8080/api/v1)

Examples:
  gearpool auth login -email kim@film.example.edu -password secret
  gearpool equipment availability -id cam-1 -start 2026-11-02 -end 2026-11-04 -quantity 2
  gearpool reserve -items cam-1:2,tripod-1 -start 2026-11-02T09:00:00Z -end 2026-11-04T17:00:00Z -purpose "thesis shoot"
  gearpool reservation approve -version 1 <id>
`)
}
