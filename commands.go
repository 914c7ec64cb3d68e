package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-authgate/order-console/api"
	"github.com/go-authgate/order-console/session"
	"github.com/go-authgate/order-console/tui"
)

const annotationAuth = "auth"

var errNotLoggedIn = errors.New("not logged in")

var requiresAuth = map[string]string{annotationAuth: "required"}

func parseID(s, what string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", what, s)
	}
	return id, nil
}

// readSecret returns value, or reads one line from in when value is empty.
func readSecret(in io.Reader, prompt io.Writer, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(prompt, "%s: ", label)
	line, err := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

func (a *app) loginCmd() *cobra.Command {
	var creds api.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the credential pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var err error
			if creds.Password, err = readSecret(a.stdin, a.stderr, "Password", creds.Password); err != nil {
				return err
			}

			pair, err := a.auth.Login(ctx, creds)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if err := a.store.Save(ctx, pair); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}
			a.coord.Reset()

			if exp, err := session.ExpiresAt(pair.Access); err == nil {
				a.logger.Info("logged in", zap.Time("access_expires_at", exp))
			}
			a.d.LoginOK(creds.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored credential pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear credentials: %w", err)
			}
			a.d.LoggedOut()
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pair, err := a.store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load credentials: %w", err)
			}

			info := tui.SessionInfo{
				Store:      a.storeName(),
				CanEnter:   a.guard.CanEnter(ctx),
				HasAccess:  pair.Access != "",
				HasRefresh: pair.Refresh != "",
				Threshold:  a.coord.Threshold(),
			}
			if exp, err := session.ExpiresAt(pair.Access); err == nil {
				info.AccessExpiresAt = exp
			}
			a.d.SessionState(info)
			return nil
		},
	}
}

func (a *app) storeName() string {
	switch s := a.store.(type) {
	case *session.FileStore:
		return "file " + s.Path()
	case *session.RedisStore:
		return "redis " + a.cfg.redisAddr + " (" + a.cfg.redisPrefix + ")"
	default:
		return a.cfg.store
	}
}

func (a *app) meCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "me",
		Short:       "Show the signed-in user",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			a.d.UserInfo(u)
			return nil
		},
	}
}

// orderQueryFlags binds the listing flags shared by list and export.
type orderQueryFlags struct {
	page    int
	order   string
	filters map[string]string
	my      bool
}

func (f *orderQueryFlags) bind(cmd *cobra.Command, withPage bool) {
	if withPage {
		cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
	}
	cmd.Flags().StringVar(&f.order, "order", "-id", "Sort field, prefix with - for descending")
	cmd.Flags().StringToStringVar(&f.filters, "filter", nil,
		"Filter as key=value, repeatable. Keys: "+strings.Join(api.FilterKeys, ", "))
	cmd.Flags().BoolVar(&f.my, "my", false, "Only orders assigned to me")
}

func (f *orderQueryFlags) query() (api.OrderQuery, error) {
	filters := make(map[string]string, len(f.filters)+1)
	keys := make([]string, 0, len(f.filters))
	for k := range f.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !api.IsFilterKey(k) {
			return api.OrderQuery{}, fmt.Errorf("unknown filter %q", k)
		}
		filters[k] = f.filters[k]
	}
	if f.my {
		filters["my"] = "true"
	}
	return api.OrderQuery{Page: f.page, Order: f.order, Filters: filters}, nil
}

func (a *app) ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Browse and edit orders",
	}
	cmd.AddCommand(
		a.ordersListCmd(),
		a.ordersStatsCmd(),
		a.ordersUpdateCmd(),
		a.ordersCommentsCmd(),
		a.ordersCommentCmd(),
		a.ordersDeleteCommentCmd(),
		a.groupsCmd(),
		a.ordersExportCmd(),
	)
	return cmd
}

func (a *app) ordersListCmd() *cobra.Command {
	var qf orderQueryFlags
	cmd := &cobra.Command{
		Use:         "list",
		Short:       "List orders",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := qf.query()
			if err != nil {
				return err
			}
			p, err := a.client.ListOrders(cmd.Context(), q)
			if err != nil {
				return err
			}
			a.d.Orders(p)
			return nil
		},
	}
	qf.bind(cmd, true)
	return cmd
}

func (a *app) ordersStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "stats",
		Short:       "Count orders per status",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.client.OrderStats(cmd.Context())
			if err != nil {
				return err
			}
			a.d.OrderStats(s)
			return nil
		},
	}
}

func (a *app) ordersUpdateCmd() *cobra.Command {
	var (
		u                            api.OrderUpdate
		name, surname, email, phone  string
		course, format, kind, status string
		age, sum, paid, group        int
	)

	cmd := &cobra.Command{
		Use:         "update ORDER_ID",
		Short:       "Change fields of an order",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}

			fs := cmd.Flags()
			setString := func(flag string, dst **string, v string) {
				if fs.Changed(flag) {
					*dst = &v
				}
			}
			setInt := func(flag string, dst **int, v int) {
				if fs.Changed(flag) {
					*dst = &v
				}
			}
			setString("name", &u.Name, name)
			setString("surname", &u.Surname, surname)
			setString("email", &u.Email, email)
			setString("phone", &u.Phone, phone)
			setString("course", &u.Course, course)
			setString("course-format", &u.CourseFormat, format)
			setString("course-type", &u.CourseType, kind)
			setString("status", &u.Status, status)
			setInt("age", &u.Age, age)
			setInt("sum", &u.Sum, sum)
			setInt("paid", &u.AlreadyPaid, paid)
			setInt("group-id", &u.GroupID, group)

			o, err := a.client.UpdateOrder(cmd.Context(), id, u)
			if err != nil {
				return err
			}
			a.d.OrderUpdated(o)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "First name")
	f.StringVar(&surname, "surname", "", "Last name")
	f.StringVar(&email, "email", "", "Email")
	f.StringVar(&phone, "phone", "", "Phone")
	f.StringVar(&course, "course", "", "Course")
	f.StringVar(&format, "course-format", "", "Course format")
	f.StringVar(&kind, "course-type", "", "Course type")
	f.StringVar(&status, "status", "", "Status: New, In work, Agree, Disagree, Dubbing")
	f.IntVar(&age, "age", 0, "Age")
	f.IntVar(&sum, "sum", 0, "Course price")
	f.IntVar(&paid, "paid", 0, "Amount already paid")
	f.IntVar(&group, "group-id", 0, "Group id")
	return cmd
}

func (a *app) ordersCommentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "comments ORDER_ID",
		Short:       "List comments on an order",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			comments, err := a.client.Comments(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.d.Comments(id, comments)
			return nil
		},
	}
}

func (a *app) ordersCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "comment ORDER_ID TEXT",
		Short:       "Comment on an order",
		Args:        cobra.ExactArgs(2),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			text := strings.TrimSpace(args[1])
			if text == "" {
				return errors.New("comment text cannot be empty")
			}
			o, err := a.client.AddComment(cmd.Context(), id, text)
			if err != nil {
				return err
			}
			a.d.Comments(id, o.Comments)
			return nil
		},
	}
}

func (a *app) ordersDeleteCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "delete-comment ORDER_ID COMMENT_ID",
		Short:       "Delete a comment",
		Args:        cobra.ExactArgs(2),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			commentID, err := parseID(args[1], "comment id")
			if err != nil {
				return err
			}
			if err := a.client.DeleteComment(cmd.Context(), orderID, commentID); err != nil {
				return err
			}
			a.d.Done(fmt.Sprintf("Comment %d deleted", commentID))
			return nil
		},
	}
}

func (a *app) groupsCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:         "groups",
		Short:       "List groups",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.client.Groups(cmd.Context(), page)
			if err != nil {
				return err
			}
			a.d.Groups(p)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")

	cmd.AddCommand(&cobra.Command{
		Use:         "create NAME",
		Short:       "Create a group",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.client.CreateGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.d.Done(fmt.Sprintf("Group %q created (id %d)", g.GroupName, g.ID))
			return nil
		},
	})
	return cmd
}

func (a *app) ordersExportCmd() *cobra.Command {
	var (
		qf          orderQueryFlags
		output      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:         "export",
		Short:       "Export every matching order as CSV",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := qf.query()
			if err != nil {
				return err
			}
			orders, err := a.client.AllOrders(cmd.Context(), q, concurrency)
			if err != nil {
				return err
			}

			if output == "-" {
				return api.WriteOrdersCSV(cmd.OutOrStdout(), orders)
			}
			f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := api.WriteOrdersCSV(f, orders); err != nil {
				f.Close()
				return fmt.Errorf("failed to write export file: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}
			a.d.Exported(output, len(orders))
			return nil
		},
	}
	qf.bind(cmd, false)
	cmd.Flags().StringVarP(&output, "output", "o", "orders.csv", "Output file, - for stdout")
	cmd.Flags().IntVar(&concurrency, "concurrency", api.DefaultExportConcurrency, "Pages fetched at once")
	return cmd
}

func (a *app) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage managers and their accounts",
	}

	var page int
	list := &cobra.Command{
		Use:         "list",
		Short:       "List users",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.client.ListUsers(cmd.Context(), page)
			if err != nil {
				return err
			}
			a.d.Users(p)
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number")

	block := func(use, short string, fn func(*api.Client, *cobra.Command, int) (*api.User, error), verb string) *cobra.Command {
		return &cobra.Command{
			Use:         use + " USER_ID",
			Short:       short,
			Args:        cobra.ExactArgs(1),
			Annotations: requiresAuth,
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0], "user id")
				if err != nil {
					return err
				}
				u, err := fn(a.client, cmd, id)
				if err != nil {
					return err
				}
				a.d.Done(fmt.Sprintf("User %s %s", u.Email, verb))
				return nil
			},
		}
	}

	var manager api.ManagerRequest
	create := &cobra.Command{
		Use:         "create-manager",
		Short:       "Create an inactive manager account",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.client.CreateManager(cmd.Context(), manager)
			if err != nil {
				return err
			}
			a.d.Done(fmt.Sprintf("Manager %s created (id %d)", u.Email, u.ID))
			return nil
		},
	}
	create.Flags().StringVar(&manager.Email, "email", "", "Manager email")
	create.Flags().StringVar(&manager.Profile.FirstName, "first-name", "", "First name")
	create.Flags().StringVar(&manager.Profile.LastName, "last-name", "", "Last name")
	_ = create.MarkFlagRequired("email")

	activation := &cobra.Command{
		Use:         "activation-link USER_ID",
		Short:       "Get an activation link for a manager",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user id")
			if err != nil {
				return err
			}
			link, err := a.client.SendActivation(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.d.Link("Activation link:", link)
			return nil
		},
	}

	cmd.AddCommand(
		list,
		block("block", "Block a user", func(c *api.Client, cmd *cobra.Command, id int) (*api.User, error) {
			return c.BlockUser(cmd.Context(), id)
		}, "blocked"),
		block("unblock", "Unblock a user", func(c *api.Client, cmd *cobra.Command, id int) (*api.User, error) {
			return c.UnblockUser(cmd.Context(), id)
		}, "unblocked"),
		create,
		activation,
	)
	return cmd
}

func (a *app) accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Register, activate and recover accounts",
	}

	var creds api.Credentials
	register := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if creds.Password, err = readSecret(a.stdin, a.stderr, "Password", creds.Password); err != nil {
				return err
			}
			u, err := a.auth.Register(cmd.Context(), creds)
			if err != nil {
				return err
			}
			a.d.Done(fmt.Sprintf("Account %s registered", u.Email))
			return nil
		},
	}
	register.Flags().StringVar(&creds.Email, "email", "", "Account email")
	register.Flags().StringVar(&creds.Password, "password", "", "Password (read from stdin when omitted)")
	_ = register.MarkFlagRequired("email")

	var activatePassword string
	activate := &cobra.Command{
		Use:   "activate TOKEN",
		Short: "Set the first password of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(a.stdin, a.stderr, "Password", activatePassword)
			if err != nil {
				return err
			}
			if err := a.auth.Activate(cmd.Context(), args[0], password); err != nil {
				return err
			}
			a.d.Done("Account activated, you can now log in")
			return nil
		},
	}
	activate.Flags().StringVar(&activatePassword, "password", "", "New password (read from stdin when omitted)")

	recoverCmd := &cobra.Command{
		Use:   "recover EMAIL",
		Short: "Request a password recovery link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := a.auth.SendRecovery(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.d.Link("Recovery link:", link)
			return nil
		},
	}

	var resetPassword string
	reset := &cobra.Command{
		Use:   "reset-password TOKEN",
		Short: "Set a new password with a recovery token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readSecret(a.stdin, a.stderr, "Password", resetPassword)
			if err != nil {
				return err
			}
			if err := a.auth.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			a.d.Done("Password changed, you can now log in")
			return nil
		},
	}
	reset.Flags().StringVar(&resetPassword, "password", "", "New password (read from stdin when omitted)")

	cmd.AddCommand(register, activate, recoverCmd, reset)
	return cmd
}
