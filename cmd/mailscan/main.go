package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskledger/mailscan/internal/credential"
	"github.com/taskledger/mailscan/internal/ingest"
	"github.com/taskledger/mailscan/internal/mailbox"
	"github.com/taskledger/mailscan/internal/model"
	"github.com/taskledger/mailscan/internal/ops"
	"github.com/taskledger/mailscan/internal/scan"
	"github.com/taskledger/mailscan/internal/schedule"
	"github.com/taskledger/mailscan/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", model.DefaultConfigPath(), "path to the configuration file")
		scanOnce   = flag.Bool("scan-once", false, "run one scan batch and exit")

		addAccount    = flag.Bool("add-account", false, "add or update a mail account and exit")
		removeAccount = flag.String("remove-account", "", "remove the mail account with this address and exit")
		listAccounts  = flag.Bool("list-accounts", false, "list configured mail accounts and exit")

		provider   = flag.String("provider", "gmail", "mail provider for -add-account (gmail or outlook)")
		email      = flag.String("email", "", "mailbox address for -add-account")
		password   = flag.String("password", "", "app password for -add-account")
		useKeyring = flag.Bool("use-keyring", false, "store the password in the OS keyring instead of the database")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger, *configPath, *scanOnce, adminArgs{
		add:        *addAccount,
		remove:     *removeAccount,
		list:       *listAccounts,
		provider:   *provider,
		email:      *email,
		password:   *password,
		useKeyring: *useKeyring,
	}); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type adminArgs struct {
	add        bool
	remove     string
	list       bool
	provider   string
	email      string
	password   string
	useKeyring bool
}

func run(logger *slog.Logger, configPath string, scanOnce bool, admin adminArgs) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if admin.add || admin.remove != "" || admin.list {
		return runAdmin(st, admin)
	}

	transport := mailbox.NewIMAPTransport(mailbox.TransportConfig{
		Providers:          cfg.IMAP.Providers,
		Folder:             cfg.IMAP.Folder,
		ConnectTimeout:     time.Duration(cfg.IMAP.ConnectTimeoutSec) * time.Second,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
	}, logger)

	scanner := scan.New(scan.Config{
		Window:         time.Duration(cfg.Scan.WindowDays) * 24 * time.Hour,
		UnseenOnly:     cfg.Scan.UnseenOnly,
		AccountTimeout: time.Duration(cfg.Scan.AccountTimeoutSec) * time.Second,
	},
		st,
		transport,
		mailbox.NewDecoder(logger),
		ingest.NewGate(st, logger),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scanOnce {
		scanner.ScanAll(ctx)
		return nil
	}

	opsServer := ops.NewServer(cfg.HTTP.Addr, scanner.ScanAll, logger)
	go func() {
		if err := opsServer.Run(ctx); err != nil {
			logger.Error("ops server stopped", "error", err)
			stop()
		}
	}()

	scheduler := schedule.New(
		scanner.ScanAll,
		time.Duration(cfg.Scan.IntervalSec)*time.Second,
		time.Duration(cfg.Scan.InitialDelaySec)*time.Second,
		logger,
	)
	return scheduler.Run(ctx)
}

func runAdmin(st store.Store, admin adminArgs) error {
	ctx := context.Background()

	switch {
	case admin.add:
		p := model.Provider(admin.provider)
		if !p.Valid() {
			return fmt.Errorf("unsupported provider %q", admin.provider)
		}
		if admin.email == "" || admin.password == "" {
			return fmt.Errorf("-add-account requires -email and -password")
		}

		blob := credential.Encode(admin.password)
		if admin.useKeyring {
			var err error
			blob, err = credential.EncodeKeyringRef(admin.email, admin.password)
			if err != nil {
				return err
			}
		}

		if err := st.UpsertMailAccount(ctx, model.MailAccount{
			Provider:       p,
			Email:          admin.email,
			CredentialBlob: blob,
		}); err != nil {
			return err
		}
		fmt.Printf("account %s configured\n", admin.email)
		return nil

	case admin.remove != "":
		acct, err := st.GetMailAccount(ctx, admin.remove)
		if err != nil {
			return err
		}
		if acct == nil {
			return fmt.Errorf("no account configured for %s", admin.remove)
		}
		if err := st.DeleteMailAccount(ctx, admin.remove); err != nil {
			return err
		}
		if err := credential.DeleteRef(acct.CredentialBlob); err != nil {
			return fmt.Errorf("account removed but keyring cleanup failed: %w", err)
		}
		fmt.Printf("account %s removed\n", admin.remove)
		return nil

	default:
		accounts, err := st.ListMailAccounts(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("no mail accounts configured")
			return nil
		}
		for _, acct := range accounts {
			lastSync := "never"
			if acct.LastSync != nil {
				lastSync = acct.LastSync.Format(time.RFC3339)
			}
			fmt.Printf("%s\t%s\tlast sync: %s\n", acct.Email, acct.Provider, lastSync)
		}
		return nil
	}
}
