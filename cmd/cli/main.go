package main

import (
	"bytes"
	"context"
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

	"github.com/joho/godotenv"

	"github.com/aryan0dhankhar/requestdesk/internal/domain"
	"github.com/aryan0dhankhar/requestdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/requestdesk/internal/repository"
	"github.com/aryan0dhankhar/requestdesk/pkg/config"
	"github.com/aryan0dhankhar/requestdesk/pkg/database"
)

func main() {
	_ = godotenv.Load()

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
	case "request":
		err = handleRequest(args)
	case "receipt":
		err = handleReceipt(args)
	case "notification":
		err = handleNotification(args)
	case "admin":
		err = handleAdmin(args)
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
		fmt.Println("Usage: requestdesk auth <register|login|logout|who>")
		return nil
	}

	switch args[0] {
	case "register":
		return registerUser(args[1:])
	case "login":
		return loginUser(args[1:])
	case "logout":
		_ = os.Remove(tokenFile())
		fmt.Println("✓ Logged out")
		return nil
	case "who":
		return whoAmI()
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func handleRequest(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: requestdesk request <list|get|create|status|comment|submit|delete>")
		return nil
	}

	switch args[0] {
	case "list":
		return listRequests(args[1:])
	case "get":
		id, err := oneArg(args[1:], "request get <request-id>")
		if err != nil {
			return err
		}
		return printJSON(http.MethodGet, "/requests/"+id, nil)
	case "create":
		return createRequest(args[1:])
	case "status":
		return changeStatus(args[1:])
	case "comment":
		if len(args) < 3 {
			return fmt.Errorf("usage: requestdesk request comment <request-id> <text>")
		}
		return printJSON(http.MethodPost, "/requests/"+args[1]+"/comments",
			map[string]string{"content": strings.Join(args[2:], " ")})
	case "submit":
		id, err := oneArg(args[1:], "request submit <request-id>")
		if err != nil {
			return err
		}
		return printJSON(http.MethodPost, "/requests/"+id+"/submit", nil)
	case "delete":
		id, err := oneArg(args[1:], "request delete <request-id>")
		if err != nil {
			return err
		}
		return printJSON(http.MethodDelete, "/requests/"+id, nil)
	default:
		return fmt.Errorf("unknown request command: %s", args[0])
	}
}

func handleReceipt(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: requestdesk receipt <list|stats|status|delete>")
		return nil
	}

	switch args[0] {
	case "list":
		return listReceipts()
	case "stats":
		return printJSON(http.MethodGet, "/receipts/stats", nil)
	case "status":
		if len(args) < 3 {
			return fmt.Errorf("usage: requestdesk receipt status <receipt-id> <en_revision|aceptada|rechazada>")
		}
		return printJSON(http.MethodPatch, "/receipts/"+args[1]+"/status", map[string]string{"status": args[2]})
	case "delete":
		id, err := oneArg(args[1:], "receipt delete <receipt-id>")
		if err != nil {
			return err
		}
		return printJSON(http.MethodDelete, "/receipts/"+id, nil)
	default:
		return fmt.Errorf("unknown receipt command: %s", args[0])
	}
}

func handleNotification(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: requestdesk notification <list|unread|read|read-all>")
		return nil
	}

	switch args[0] {
	case "list":
		return listNotifications(args[1:])
	case "unread":
		return printJSON(http.MethodGet, "/notifications/unread-count", nil)
	case "read":
		id, err := oneArg(args[1:], "notification read <notification-id>")
		if err != nil {
			return err
		}
		return printJSON(http.MethodPost, "/notifications/"+id+"/read", nil)
	case "read-all":
		return printJSON(http.MethodPost, "/notifications/read-all", nil)
	default:
		return fmt.Errorf("unknown notification command: %s", args[0])
	}
}

// Admin commands talk to the database directly and need the server's DB_* env.
func handleAdmin(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: requestdesk admin <promote|migrate>")
		return nil
	}

	switch args[0] {
	case "promote":
		email, err := oneArg(args[1:], "admin promote <email>")
		if err != nil {
			return err
		}
		return withDatabase(func(ctx context.Context, pool *database.ConnectionPool) error {
			users := repository.NewPostgresUserRepository(pool.GetDB(), logger.Discard())
			u, err := users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return fmt.Errorf("look up %s: %w", email, err)
			}
			if u.IsAdmin() {
				fmt.Printf("✓ %s is already an admin\n", u.Email)
				return nil
			}
			u.Role = domain.RoleAdmin
			if err := users.Update(ctx, u); err != nil {
				return fmt.Errorf("promote %s: %w", email, err)
			}
			fmt.Printf("✓ %s promoted to admin\n", u.Email)
			return nil
		})
	case "migrate":
		return withDatabase(func(ctx context.Context, pool *database.ConnectionPool) error {
			if err := pool.Migrate(ctx); err != nil {
				return err
			}
			fmt.Println("✓ Schema is up to date")
			return nil
		})
	default:
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func withDatabase(fn func(context.Context, *database.ConnectionPool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewConnectionPool(ctx, cfg.Database, logger.NewLogger("warn"))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

// Auth commands
func registerUser(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	firstName := fs.String("first-name", "", "first name")
	lastName := fs.String("last-name", "", "last name")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	if *email == "" || *firstName == "" || *lastName == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("email, first-name, last-name and password are required")
	}

	var result struct {
		Message              string `json:"message"`
		RequiresVerification bool   `json:"requiresVerification"`
	}
	err := call(http.MethodPost, "/auth/register", map[string]string{
		"email":     *email,
		"firstName": *firstName,
		"lastName":  *lastName,
		"password":  *password,
	}, &result)
	if err != nil {
		return err
	}
	fmt.Printf("✓ User registered: %s\n", *email)
	if result.RequiresVerification {
		fmt.Println("  Check your inbox to verify the address before logging in.")
	}
	return nil
}

func loginUser(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	if *email == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("email and password are required")
	}

	var result struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
			Token string `json:"token"`
		} `json:"user"`
	}
	if err := call(http.MethodPost, "/auth/login", map[string]string{"email": *email, "password": *password}, &result); err != nil {
		return err
	}
	if err := saveToken(result.User.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("✓ Logged in as: %s (%s)\n", result.User.Email, result.User.Role)
	return nil
}

func whoAmI() error {
	if loadToken() == "" {
		fmt.Println("Not logged in")
		return nil
	}
	var result struct {
		User domain.UserSummary `json:"user"`
	}
	if err := call(http.MethodGet, "/auth/me", nil, &result); err != nil {
		return err
	}
	fmt.Printf("✓ %s %s <%s> role=%s id=%s\n",
		result.User.FirstName, result.User.LastName, result.User.Email, result.User.Role, result.User.ID)
	return nil
}

// Request commands
func listRequests(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	search := fs.String("search", "", "search title and description")
	skip := fs.Int("skip", 0, "requests to skip")
	limit := fs.Int("limit", 10, "page size")
	_ = fs.Parse(args)

	q := url.Values{}
	if *status != "" {
		q.Set("status", *status)
	}
	if *search != "" {
		q.Set("search", *search)
	}
	q.Set("skip", fmt.Sprint(*skip))
	q.Set("limit", fmt.Sprint(*limit))

	var result struct {
		Requests []struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"requests"`
		Total int `json:"total"`
	}
	if err := call(http.MethodGet, "/requests?"+q.Encode(), nil, &result); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tCREATED")
	for _, r := range result.Requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Title, r.CreatedAt.Format(time.DateOnly))
	}
	_ = w.Flush()
	fmt.Printf("showing %d of %d\n", len(result.Requests), result.Total)
	return nil
}

func createRequest(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	title := fs.String("title", "", "request title")
	description := fs.String("description", "", "what is needed")
	projectType := fs.String("type", "", "project type")
	priority := fs.String("priority", "", "low|medium|high|urgent")
	_ = fs.Parse(args)

	if *title == "" || *description == "" || *projectType == "" {
		fs.PrintDefaults()
		return fmt.Errorf("title, description and type are required")
	}
	return printJSON(http.MethodPost, "/requests", map[string]string{
		"title":       *title,
		"description": *description,
		"projectType": *projectType,
		"priority":    *priority,
	})
}

func changeStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	reason := fs.String("reason", "", "reason shown in the history")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: requestdesk request status [-reason text] <request-id> <status>")
	}
	return printJSON(http.MethodPatch, "/requests/"+fs.Arg(0)+"/status", map[string]string{
		"toStatus": fs.Arg(1),
		"reason":   *reason,
	})
}

// Receipt commands
func listReceipts() error {
	var result struct {
		Data []domain.Receipt `json:"data"`
	}
	if err := call(http.MethodGet, "/receipts", nil, &result); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFOLIO\tCOMPANY\tTOTAL\tSTATUS")
	for _, r := range result.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", r.ID, r.FolioNumber, r.CompanyName, r.TotalAmount, r.Status)
	}
	return w.Flush()
}

// Notification commands
func listNotifications(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	unread := fs.Bool("unread", false, "only unread notifications")
	limit := fs.Int("limit", 20, "maximum to show")
	_ = fs.Parse(args)

	path := fmt.Sprintf("/notifications?limit=%d&unread_only=%t", *limit, *unread)
	var items []domain.Notification
	if err := call(http.MethodGet, path, nil, &items); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tREAD\tTITLE\tCREATED")
	for _, n := range items {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", n.ID, n.Type, n.Read, n.Title, n.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

// Helper functions

// call sends body as JSON and decodes a 2xx response into out. Error bodies
// surface their "error" field.
func call(method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, getAPIURL()+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuthHeader(req)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(method, path string, body any) error {
	var raw json.RawMessage
	if err := call(method, path, body, &raw); err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return err
	}
	fmt.Println(pretty.String())
	return nil
}

func oneArg(args []string, usage string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: requestdesk %s", usage)
	}
	return args[0], nil
}

func getAPIURL() string {
	if u := os.Getenv("REQUESTDESK_API"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".requestdesk", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}

func addAuthHeader(req *http.Request) {
	if token := loadToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func printUsage() {
	fmt.Print(`RequestDesk CLI

Usage:
  requestdesk <command> [options]

Commands:
  auth          User authentication (register, login, logout, who)
  request       Service requests (list, get, create, status, comment, submit, delete)
  receipt       Receipts (list, stats, status, delete)
  notification  Notifications (list, unread, read, read-all)
  admin         Database operations (promote, migrate) - needs DB_* settings
  help          Show this help message

Environment Variables:
  REQUESTDESK_API    API endpoint (default: http://localhost:8080/api)

Examples:
  requestdesk auth register -email ana@example.com -first-name Ana -last-name Ruiz -password secret123
  requestdesk auth login -email ana@example.com -password secret123
  requestdesk request create -title "Company website" -type web_app -description "Landing page and blog"
  requestdesk request status -reason "Budget approved" <request-id> approved
  requestdesk admin promote ana@example.com
`)
}
