package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/hitoshi/readerbridge/internal/auth"
	"github.com/hitoshi/readerbridge/internal/config"
	"github.com/hitoshi/readerbridge/internal/discovery"
	"github.com/hitoshi/readerbridge/internal/model"
	"github.com/hitoshi/readerbridge/internal/opml"
	"github.com/hitoshi/readerbridge/internal/repository"
	"github.com/hitoshi/readerbridge/internal/security"
)

// userUpserter はユーザー設定を保存するインターフェース。
type userUpserter interface {
	Upsert(ctx context.Context, user *model.UserConfig) error
}

// opmlImporter はOPMLを取り込むインターフェース。
type opmlImporter interface {
	Import(ctx context.Context, username string, r io.Reader) (*opml.Result, error)
}

// userFlag はサブコマンド共通の--userフラグを登録する。
func userFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("user", "u", "", "対象のユーザー名（英数字のみ）")
}

// runSetPassword はユーザーのAPIパスワードを設定する。
// パスワードは標準入力から読み、端末の場合はエコーしない。
func runSetPassword(cfg *config.Config, stdin io.Reader, w io.Writer, args []string) error {
	fs := pflag.NewFlagSet(string(CommandSetPassword), pflag.ContinueOnError)
	fs.SetOutput(w)
	username := userFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !auth.ValidUsername(*username) {
		return fmt.Errorf("invalid username %q", *username)
	}

	password, err := readPassword(stdin, w)
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return setPassword(ctx, repository.NewPostgresUserRepo(db), *username, password)
}

// setPassword はパスワードをハッシュ化してユーザー設定に保存する。
func setPassword(ctx context.Context, users userUpserter, username, password string) error {
	if !auth.ValidUsername(username) {
		return fmt.Errorf("invalid username %q", username)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := users.Upsert(ctx, &model.UserConfig{Username: username, APIPasswordHash: hash}); err != nil {
		return fmt.Errorf("failed to save api password: %w", err)
	}
	slog.Info("api password updated", slog.String("user", username))
	return nil
}

// readPassword はstdinから1行のパスワードを読む。
func readPassword(stdin io.Reader, w io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, "API password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must not be empty")
	}
	return line, nil
}

// runImportOPML はOPMLファイルのフィードをユーザーに登録する。
// --fileに "-" を指定すると標準入力から読む。htmlUrlしかないアウトラインはページからフィードを探す。
func runImportOPML(cfg *config.Config, stdin io.Reader, w io.Writer, args []string) error {
	fs := pflag.NewFlagSet(string(CommandImportOPML), pflag.ContinueOnError)
	fs.SetOutput(w)
	username := userFlag(fs)
	file := fs.StringP("file", "f", "-", "OPMLファイルのパス")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !auth.ValidUsername(*username) {
		return fmt.Errorf("invalid username %q", *username)
	}

	r := stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("failed to open OPML file: %w", err)
		}
		defer f.Close()
		r = f
	}

	ctx := context.Background()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	guard := security.NewSSRFGuard()
	importer := opml.NewImporter(
		repository.NewPostgresCategoryRepo(db),
		repository.NewPostgresFeedRepo(db),
		guard,
		discovery.NewLocator(guard, cfg.FetchTimeout),
		slog.Default(),
	)
	return importOPML(ctx, importer, w, *username, r)
}

// importOPML は取り込みを実行し、件数をwに書き出す。
func importOPML(ctx context.Context, importer opmlImporter, w io.Writer, username string, r io.Reader) error {
	result, err := importer.Import(ctx, username, r)
	if err != nil {
		return fmt.Errorf("OPML import failed: %w", err)
	}
	fmt.Fprintf(w, "created=%d existing=%d rejected=%d\n", result.Created, result.Existing, result.Rejected)
	return nil
}
