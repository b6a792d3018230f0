// Package app はアプリケーションの初期化と起動モードの振り分けを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/accountman/internal/account"
	"github.com/hitoshi/accountman/internal/apiclient"
	"github.com/hitoshi/accountman/internal/authprovider"
	"github.com/hitoshi/accountman/internal/config"
	"github.com/hitoshi/accountman/internal/events"
	"github.com/hitoshi/accountman/internal/localserver"
	"github.com/hitoshi/accountman/internal/logger"
	"github.com/hitoshi/accountman/internal/metrics"
	"github.com/hitoshi/accountman/internal/middleware"
	"github.com/hitoshi/accountman/internal/model"
	"github.com/hitoshi/accountman/internal/profile"
	"github.com/hitoshi/accountman/internal/security"
	"github.com/hitoshi/accountman/internal/session"
	"github.com/hitoshi/accountman/internal/store"
)

// clientID は送信リクエストに付与する固定のクライアント識別子。
const clientID = "creator-dashboard"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("LISTEN_PORT")
		if port == "" {
			port = "8787"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Bool("auth_configured", cfg.AuthConfigured()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandAccounts:
		return runAccounts(cfg, w)
	case CommandSwitch:
		return runSwitch(cfg, args[1:], w)
	case CommandSignOut:
		return runSignOut(cfg)
	default:
		return runMain(cfg)
	}
}

// deps はワイヤリング済みの依存関係一式。
type deps struct {
	cfg       *config.Config
	st        *store.Store
	bus       *events.Bus
	registry  *prometheus.Registry
	collector *metrics.Collector
	provider  *authprovider.HTTPProvider // 未認証モードではnil
	sessions  *session.Manager
	accounts  *account.Registry
	styles    *profile.StyleRegistry
	creator   *profile.CreatorRegistry
}

// buildDeps は全依存関係をワイヤリングする。
// ローカル状態DBのマイグレーションを適用してから接続を開き、
// 送信リクエストを加工するRoundTripperチェーンの上にAPIクライアントと
// 各レジストリを構築する。
func buildDeps(cfg *config.Config) (*deps, error) {
	log := slog.Default()

	// 1. ローカル状態DB
	if err := store.RunMigrations(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}
	st, err := store.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	// 2. 通知バスとメトリクス
	bus := events.NewBus()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	bus.SubscribeAccountBroken(func(n events.AccountBroken) {
		collector.RecordBrokenAccount(string(n.Platform))
	})

	// 3. IDプロバイダー（設定が揃っている場合のみ）
	var httpProvider *authprovider.HTTPProvider
	var provider authprovider.Provider
	blobKey := ""
	if cfg.AuthConfigured() {
		blobKey = authprovider.SessionKey(cfg.ProviderURL)
		httpProvider = authprovider.NewHTTPProvider(authprovider.Config{
			BaseURL:       cfg.ProviderURL,
			AnonKey:       cfg.ProviderAnonKey,
			RedirectURL:   cfg.ProviderRedirectURL,
			RefreshMargin: cfg.RefreshMargin,
		}, &http.Client{Timeout: cfg.RequestTimeout}, st, log)
		provider = httpProvider
	}

	// 4. セッションマネージャー
	sessions := session.NewManager(provider, log)

	// 5. 送信リクエストのRoundTripperチェーン
	// アカウントレジストリはAPIクライアントに依存し、APIクライアントの
	// ルーティングヘッダーはレジストリのアクティブIDに依存するため、
	// レジストリは後から代入する。
	var accounts *account.Registry
	tokenSource := func() string {
		if token := sessions.AccessToken(); token != "" {
			return token
		}
		if blobKey == "" {
			return ""
		}
		return authprovider.AccessTokenFromStore(st, blobKey)
	}
	accountSource := func() string {
		if accounts == nil {
			return ""
		}
		return accounts.ActiveAccountID()
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst)
	transport := middleware.Chain(http.DefaultTransport,
		metrics.InstrumentTransport(collector),
		middleware.NewRequestLogging(log),
		middleware.NewThrottle(limiter),
		middleware.NewClientIdentity(clientID),
		middleware.NewBearerAuth(tokenSource),
		middleware.NewAccountRouting(accountSource),
		middleware.NewReplayGuard(),
		middleware.NewResponseGuard(bus, log),
	)
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}

	// 6. APIクライアントとレジストリ
	api := apiclient.NewClient(httpClient, cfg.APIBaseURL, log)
	accounts = account.NewRegistry(api, st, store.KeyActiveAccountID, log)
	styles := profile.NewStyleRegistry(api, st, store.KeyActiveStyleProfileID, log)
	creator := profile.NewCreatorRegistry(api, security.NewTextSanitizer(), log)

	// 7. セッションイベントとレジストリの連動
	// サインアウトでレジストリのメモリ状態を破棄する（永続値は残す）。
	// トークンリフレッシュの結果はメトリクスに記録する。
	if httpProvider != nil {
		httpProvider.Subscribe(func(event authprovider.Event, s *model.Session) {
			switch event {
			case authprovider.EventSignedOut:
				accounts.Reset()
				styles.Reset()
				creator.Reset()
			case authprovider.EventTokenRefreshed:
				collector.RecordTokenRefresh(s != nil)
			}
		})
	}

	return &deps{
		cfg:       cfg,
		st:        st,
		bus:       bus,
		registry:  registry,
		collector: collector,
		provider:  httpProvider,
		sessions:  sessions,
		accounts:  accounts,
		styles:    styles,
		creator:   creator,
	}, nil
}

// runMain はセッション・アカウントレイヤーを常駐モードで起動する。
// セッションを復元し、各レジストリを並行で初期化し、
// ローカルリスナーをシグナル受信まで提供する。
func runMain(cfg *config.Config) error {
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. セッション復元とイベント購読
	d.sessions.Start(ctx)
	defer d.sessions.Stop()

	// 2. バックグラウンドトークンリフレッシュ。
	// StartAutoRefreshは内部でゴルーチンを起動するのでここでは起動しない。
	if d.provider != nil {
		d.provider.StartAutoRefresh(ctx)
	}

	// 3. レジストリの並行初期化
	var wg sync.WaitGroup
	for _, load := range []func(context.Context){
		d.accounts.Load,
		d.styles.Load,
		d.creator.Load,
	} {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(ctx)
		}(load)
	}
	wg.Wait()

	// 4. ローカルリスナーの起動
	router := localserver.NewRouter(&localserver.Deps{
		Exchanger: d.sessions,
		Gatherer:  d.registry,
		Logger:    slog.Default(),
	})
	server := &http.Server{
		Addr:    ":" + cfg.ListenPort,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("local listener starting", slog.String("port", cfg.ListenPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("local listener failed: %w", err)
	case <-ctx.Done():
	}

	// 5. グレースフルシャットダウン
	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runMigrate はローカル状態DBのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running local store migrations",
		slog.String("state_path", cfg.StatePath),
	)

	if err := store.RunMigrations(cfg.StatePath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("local store migrations completed successfully")
	return nil
}

// runAccounts は連携アカウントの一覧を表示する。
func runAccounts(cfg *config.Config, w io.Writer) error {
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.st.Close()

	ctx := context.Background()
	d.sessions.Start(ctx)
	defer d.sessions.Stop()
	d.accounts.Load(ctx)

	accounts := d.accounts.Accounts()
	if len(accounts) == 0 {
		fmt.Fprintln(w, "連携アカウントはありません。")
		return nil
	}

	activeID := d.accounts.ActiveAccountID()
	for _, a := range accounts {
		marker := "  "
		if a.ID == activeID {
			marker = "* "
		}
		fmt.Fprintf(w, "%s%s\t%s\t@%s\n", marker, a.ID, a.Platform, a.Username)
	}
	return nil
}

// runSwitch はアクティブアカウントを切り替える。
// 第1引数に切り替え先のアカウントIDを取る。
func runSwitch(cfg *config.Config, args []string, w io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: switch <account-id>")
	}
	accountID := args[0]

	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.st.Close()

	ctx := context.Background()
	d.sessions.Start(ctx)
	defer d.sessions.Stop()
	d.accounts.Load(ctx)

	warning, err := d.accounts.SwitchAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("switch failed: %w", err)
	}
	d.collector.RecordAccountSwitch()

	fmt.Fprintf(w, "アクティブアカウントを %s に切り替えました。\n", accountID)
	if warning != "" {
		fmt.Fprintf(w, "警告: %s\n", warning)
	}
	return nil
}

// runSignOut はサインアウトしてセッションとレジストリの状態を破棄する。
// 永続化された最終選択アカウントは次回サインイン用に残る。
func runSignOut(cfg *config.Config) error {
	d, err := buildDeps(cfg)
	if err != nil {
		return err
	}
	defer d.st.Close()

	ctx := context.Background()
	d.sessions.Start(ctx)
	defer d.sessions.Stop()

	if err := d.sessions.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}

	slog.Info("signed out")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
