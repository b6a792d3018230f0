package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/accountman/internal/model"
)

// --- モック ---

type mockAPI struct {
	listAccountsFn  func(ctx context.Context) ([]model.Account, error)
	switchAccountFn func(ctx context.Context, accountID string) (string, error)
}

func (m *mockAPI) ListAccounts(ctx context.Context) ([]model.Account, error) {
	if m.listAccountsFn != nil {
		return m.listAccountsFn(ctx)
	}
	return nil, nil
}
func (m *mockAPI) SwitchAccount(ctx context.Context, accountID string) (string, error) {
	if m.switchAccountFn != nil {
		return m.switchAccountFn(ctx, accountID)
	}
	return "", nil
}

type memKV struct {
	data map[string]string

	// setHook はSetの書き込み直前に呼ばれる。並行タイミングの制御用。
	setHook func(key, value string)
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(key string) (string, bool) {
	v, ok := m.data[key]
	return v, ok
}
func (m *memKV) Set(key, value string) error {
	if m.setHook != nil {
		m.setHook(key, value)
	}
	m.data[key] = value
	return nil
}
func (m *memKV) Remove(key string) error {
	delete(m.data, key)
	return nil
}

const testKey = "active_account_id"

func listOf(accounts ...model.Account) func(ctx context.Context) ([]model.Account, error) {
	return func(ctx context.Context) ([]model.Account, error) {
		return accounts, nil
	}
}

func newTestRegistry(api *mockAPI, kv *memKV) *Registry {
	return NewRegistry(api, kv, testKey, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// --- テスト ---

// TestRegistry_Load_FiltersDefaultPlatform は合成defaultプラットフォームが
// 公開リストに決して現れないことを検証する。
func TestRegistry_Load_FiltersDefaultPlatform(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "d", Platform: model.PlatformDefault, Username: "system"},
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
	)}
	r := newTestRegistry(api, newMemKV())

	r.Load(context.Background())

	accounts := r.Accounts()
	if len(accounts) != 1 {
		t.Fatalf("len(accounts) = %d, want 1", len(accounts))
	}
	if accounts[0].ID != "a" {
		t.Errorf("accounts[0].ID = %q, want %q", accounts[0].ID, "a")
	}
	for _, a := range accounts {
		if a.Platform == model.PlatformDefault {
			t.Error("default platform account exposed in list")
		}
	}
}

// TestRegistry_Load_ResolvesPrimaryWithoutPersistedID は永続化済みIDが
// ない場合にプライマリアカウントが解決・永続化されることを検証する。
func TestRegistry_Load_ResolvesPrimaryWithoutPersistedID(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob", IsPrimary: false},
		model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue", IsPrimary: true},
	)}
	kv := newMemKV()
	r := newTestRegistry(api, kv)

	r.Load(context.Background())

	if got := r.ActiveAccountID(); got != "b" {
		t.Errorf("ActiveAccountID = %q, want %q", got, "b")
	}
	if persisted, _ := kv.Get(testKey); persisted != "b" {
		t.Errorf("persisted = %q, want %q", persisted, "b")
	}
}

func TestRegistry_Load_PersistedIDStillPresentWins(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
		model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue", IsPrimary: true},
	)}
	kv := newMemKV()
	kv.Set(testKey, "a")
	r := newTestRegistry(api, kv)

	r.Load(context.Background())

	if got := r.ActiveAccountID(); got != "a" {
		t.Errorf("ActiveAccountID = %q, want persisted %q", got, "a")
	}
}

func TestRegistry_Load_NoPrimaryFallsBackToFirst(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "x", Platform: model.PlatformYouTube, Username: "ann"},
		model.Account{ID: "y", Platform: model.PlatformTikTok, Username: "ben"},
	)}
	kv := newMemKV()
	r := newTestRegistry(api, kv)

	r.Load(context.Background())

	if got := r.ActiveAccountID(); got != "x" {
		t.Errorf("ActiveAccountID = %q, want first %q", got, "x")
	}
	if persisted, _ := kv.Get(testKey); persisted != "x" {
		t.Errorf("persisted = %q, want %q", persisted, "x")
	}
}

func TestRegistry_Load_EmptyListResolvesToNone(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf()}
	kv := newMemKV()
	kv.Set(testKey, "stale")
	r := newTestRegistry(api, kv)

	r.Load(context.Background())

	if got := r.ActiveAccountID(); got != "" {
		t.Errorf("ActiveAccountID = %q, want empty", got)
	}
	if _, ok := kv.Get(testKey); ok {
		t.Error("expected stale persisted id to be removed for empty list")
	}
	if r.ActiveAccount() != nil {
		t.Error("expected nil ActiveAccount for empty list")
	}
}

// TestRegistry_Load_FetchFailureDegradesToEmpty は取得失敗時に
// 空状態へ縮退し、loadingが解除されることを検証する。
func TestRegistry_Load_FetchFailureDegradesToEmpty(t *testing.T) {
	api := &mockAPI{listAccountsFn: func(ctx context.Context) ([]model.Account, error) {
		return nil, errors.New("backend down")
	}}
	r := newTestRegistry(api, newMemKV())

	if !r.Loading() {
		t.Error("expected loading=true before Load")
	}

	r.Load(context.Background())

	if r.Loading() {
		t.Error("expected loading=false after failed Load")
	}
	if len(r.Accounts()) != 0 {
		t.Errorf("accounts = %v, want empty", r.Accounts())
	}
}

func TestRegistry_IsMultiAccount(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
	)}
	r := newTestRegistry(api, newMemKV())
	r.Load(context.Background())

	if r.IsMultiAccount() {
		t.Error("expected IsMultiAccount=false for single account")
	}

	api.listAccountsFn = listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
		model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
	)
	if _, err := r.RefreshAccounts(context.Background()); err != nil {
		t.Fatalf("RefreshAccounts returned error: %v", err)
	}

	if !r.IsMultiAccount() {
		t.Error("expected IsMultiAccount=true for two accounts")
	}
}

// TestRegistry_SwitchAccount_BackendFailureLeavesStateUnchanged は
// バックエンド失敗時に状態と永続値が一切変更されないことを検証する。
func TestRegistry_SwitchAccount_BackendFailureLeavesStateUnchanged(t *testing.T) {
	api := &mockAPI{
		listAccountsFn: listOf(
			model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob", IsPrimary: true},
			model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
		),
		switchAccountFn: func(ctx context.Context, accountID string) (string, error) {
			return "", errors.New("backend failure")
		},
	}
	kv := newMemKV()
	r := newTestRegistry(api, kv)
	r.Load(context.Background())

	if _, err := r.SwitchAccount(context.Background(), "b"); err == nil {
		t.Fatal("expected error on backend failure, got nil")
	}

	if got := r.ActiveAccountID(); got != "a" {
		t.Errorf("ActiveAccountID = %q, want unchanged %q", got, "a")
	}
	if persisted, _ := kv.Get(testKey); persisted != "a" {
		t.Errorf("persisted = %q, want unchanged %q", persisted, "a")
	}
}

// TestRegistry_SwitchAccount_WarningIsSuccess はバックエンドの警告付き
// 成功がアクティブIDを更新しつつ警告を区別して返すことを検証する。
func TestRegistry_SwitchAccount_WarningIsSuccess(t *testing.T) {
	api := &mockAPI{
		listAccountsFn: listOf(
			model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob", IsPrimary: true},
			model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
		),
		switchAccountFn: func(ctx context.Context, accountID string) (string, error) {
			return "token expired", nil
		},
	}
	kv := newMemKV()
	r := newTestRegistry(api, kv)
	r.Load(context.Background())

	warning, err := r.SwitchAccount(context.Background(), "b")
	if err != nil {
		t.Fatalf("SwitchAccount returned error: %v", err)
	}
	if warning != "token expired" {
		t.Errorf("warning = %q, want %q", warning, "token expired")
	}
	if got := r.ActiveAccountID(); got != "b" {
		t.Errorf("ActiveAccountID = %q, want %q", got, "b")
	}
	if persisted, _ := kv.Get(testKey); persisted != "b" {
		t.Errorf("persisted = %q, want %q", persisted, "b")
	}
}

func TestRegistry_SwitchAccount_UnknownIDFails(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
	)}
	r := newTestRegistry(api, newMemKV())
	r.Load(context.Background())

	_, err := r.SwitchAccount(context.Background(), "ghost")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAccountNotFound {
		t.Errorf("error = %v, want code %s", err, model.ErrCodeAccountNotFound)
	}
	if got := r.ActiveAccountID(); got != "a" {
		t.Errorf("ActiveAccountID = %q, want unchanged %q", got, "a")
	}
}

// TestRegistry_RefreshAccounts_RemovedActiveFallsBack はアクティブな
// アカウントがリストから消えた場合のフォールバック再適用を検証する。
func TestRegistry_RefreshAccounts_RemovedActiveFallsBack(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
		model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
	)}
	kv := newMemKV()
	kv.Set(testKey, "a")
	r := newTestRegistry(api, kv)
	r.Load(context.Background())

	if got := r.ActiveAccountID(); got != "a" {
		t.Fatalf("ActiveAccountID = %q, want %q", got, "a")
	}

	// aがリストから消える
	api.listAccountsFn = listOf(
		model.Account{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
	)

	refreshed, err := r.RefreshAccounts(context.Background())
	if err != nil {
		t.Fatalf("RefreshAccounts returned error: %v", err)
	}
	if len(refreshed) != 1 || refreshed[0].ID != "b" {
		t.Errorf("refreshed = %v, want [b]", refreshed)
	}
	if got := r.ActiveAccountID(); got != "b" {
		t.Errorf("ActiveAccountID = %q, want fallback %q", got, "b")
	}
	if persisted, _ := kv.Get(testKey); persisted != "b" {
		t.Errorf("persisted = %q, want %q", persisted, "b")
	}
}

// TestRegistry_SlowRefreshDoesNotOverrideSwitch は遅れて解決した
// refreshが直近のswitchの選択を復活させないことを検証する。
func TestRegistry_SlowRefreshDoesNotOverrideSwitch(t *testing.T) {
	accounts := []model.Account{
		{ID: "a", Platform: model.PlatformTwitter, Username: "bob", IsPrimary: true},
		{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
	}

	release := make(chan struct{})
	started := make(chan struct{})
	slow := false
	api := &mockAPI{
		listAccountsFn: func(ctx context.Context) ([]model.Account, error) {
			if slow {
				close(started)
				<-release
			}
			return accounts, nil
		},
	}
	kv := newMemKV()
	r := newTestRegistry(api, kv)
	r.Load(context.Background())

	// 遅いrefreshを開始し、フェッチ中にswitchを完了させる
	slow = true
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.RefreshAccounts(context.Background()); err != nil {
			t.Errorf("RefreshAccounts returned error: %v", err)
		}
	}()

	<-started
	if _, err := r.SwitchAccount(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchAccount returned error: %v", err)
	}
	close(release)
	<-done

	if got := r.ActiveAccountID(); got != "b" {
		t.Errorf("ActiveAccountID = %q, want switch winner %q", got, "b")
	}
	if persisted, _ := kv.Get(testKey); persisted != "b" {
		t.Errorf("persisted = %q, want %q", persisted, "b")
	}
}

// TestRegistry_RefreshPersistDoesNotTrailSwitch は再解決を適用した
// refreshの永続化の最中にswitchが割り込んでも、永続値がメモリ上の
// 勝者より古い書き込みのまま残らないことを検証する。
// 適用と永続化はロック下で不可分に行われる。
func TestRegistry_RefreshPersistDoesNotTrailSwitch(t *testing.T) {
	loaded := []model.Account{
		{ID: "a", Platform: model.PlatformTwitter, Username: "bob", IsPrimary: true},
		{ID: "b", Platform: model.PlatformInstagram, Username: "sue"},
		{ID: "c", Platform: model.PlatformYouTube, Username: "eve"},
	}
	// bが削除され、アクティブだったbはプライマリaへ再解決される
	refreshed := []model.Account{loaded[0], loaded[2]}

	refreshing := false
	api := &mockAPI{
		listAccountsFn: func(ctx context.Context) ([]model.Account, error) {
			if refreshing {
				return refreshed, nil
			}
			return loaded, nil
		},
	}
	kv := newMemKV()
	r := newTestRegistry(api, kv)

	r.Load(context.Background())
	if _, err := r.SwitchAccount(context.Background(), "b"); err != nil {
		t.Fatalf("SwitchAccount returned error: %v", err)
	}

	// refreshの永続化（"a"の書き戻し）を一時停止させ、その間にswitchを
	// 開始する。switchはロック獲得を待ち、refreshの後に適用・永続化される。
	persisting := make(chan struct{})
	release := make(chan struct{})
	hooked := false
	kv.setHook = func(key, value string) {
		if hooked {
			return
		}
		hooked = true
		close(persisting)
		<-release
	}

	refreshing = true
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		if _, err := r.RefreshAccounts(context.Background()); err != nil {
			t.Errorf("RefreshAccounts returned error: %v", err)
		}
	}()

	<-persisting
	switchDone := make(chan struct{})
	go func() {
		defer close(switchDone)
		if _, err := r.SwitchAccount(context.Background(), "c"); err != nil {
			t.Errorf("SwitchAccount returned error: %v", err)
		}
	}()

	close(release)
	<-refreshDone
	<-switchDone

	if got := r.ActiveAccountID(); got != "c" {
		t.Errorf("ActiveAccountID = %q, want switch winner %q", got, "c")
	}
	if persisted, _ := kv.Get(testKey); persisted != "c" {
		t.Errorf("persisted = %q, want in-memory winner %q", persisted, "c")
	}
}

func TestRegistry_Reset(t *testing.T) {
	api := &mockAPI{listAccountsFn: listOf(
		model.Account{ID: "a", Platform: model.PlatformTwitter, Username: "bob"},
	)}
	kv := newMemKV()
	r := newTestRegistry(api, kv)
	r.Load(context.Background())

	r.Reset()

	if len(r.Accounts()) != 0 {
		t.Error("expected empty accounts after Reset")
	}
	if r.ActiveAccountID() != "" {
		t.Error("expected empty ActiveAccountID after Reset")
	}
	// 永続化された最終選択は次回サインイン用に残る
	if persisted, _ := kv.Get(testKey); persisted != "a" {
		t.Errorf("persisted = %q, want retained %q", persisted, "a")
	}
}
