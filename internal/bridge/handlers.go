package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/robby/roster/internal/domain"
	"github.com/robby/roster/internal/members"
	"github.com/robby/roster/internal/remote"
	"github.com/robby/roster/internal/session"
)

type handlerFunc func(ctx context.Context, b *Bridge, job *Job, log *slog.Logger) Outcome

// handlers is the single registration point for job variants.
var handlers = map[Kind]handlerFunc{}

func register[R Request](fn func(ctx context.Context, b *Bridge, req R, job *Job, log *slog.Logger) Outcome) {
	var zero R
	handlers[zero.kind()] = func(ctx context.Context, b *Bridge, job *Job, log *slog.Logger) Outcome {
		req, ok := job.Request.(R)
		if !ok {
			return Outcome{Err: fmt.Errorf("job %s carries %T", job.Kind, job.Request)}
		}
		return fn(ctx, b, req, job, log)
	}
}

func init() {
	register(requestCode)
	register(submitCode)
	register(fetchMembers)
	register(exportMembers)
}

// requestCode sends a login code unless the session is already signed in.
func requestCode(ctx context.Context, b *Bridge, req RequestCode, _ *Job, log *slog.Logger) Outcome {
	authorized, err := call(b.handle, func(c Client) (bool, error) {
		return c.IsAuthorized(ctx)
	})
	if err != nil {
		return Outcome{Err: err}
	}
	if authorized {
		log.Info("Already authorized, no code needed")
		return Outcome{Authorized: true}
	}

	token, err := call(b.handle, func(c Client) (*remote.LoginToken, error) {
		return c.RequestLoginCode(ctx, req.Phone)
	})
	if err != nil {
		return Outcome{Err: err}
	}
	log.Info("Login code requested")
	return Outcome{Token: token}
}

// submitCode signs in and saves the session. A failed save is logged, not returned.
func submitCode(ctx context.Context, b *Bridge, req SubmitCode, _ *Job, log *slog.Logger) Outcome {
	authorized, err := call(b.handle, func(c Client) (bool, error) {
		return c.IsAuthorized(ctx)
	})
	if err != nil {
		return Outcome{Err: err}
	}
	if authorized {
		return Outcome{Authorized: true}
	}

	if err := b.handle.Do(func(c Client) error {
		return c.SignIn(ctx, req.Token, req.Code)
	}); err != nil {
		if errors.Is(err, remote.ErrPasswordRequired) {
			log.Warn("Account requires a password; sign-in with a password is not supported")
		}
		return Outcome{Err: err}
	}
	log.Info("Signed in")

	var sess session.Session
	_ = b.handle.Do(func(c Client) error {
		sess = c.Session()
		return nil
	})
	if err := b.sessions.Save(ctx, sess); err != nil {
		log.Warn("Failed to save the session; you will need to sign in again next time", "error", err)
	}
	return Outcome{Authorized: true}
}

// fetchMembers resolves the group and drains its member list.
func fetchMembers(ctx context.Context, b *Bridge, req FetchMembers, job *Job, log *slog.Logger) Outcome {
	out := Outcome{Group: req.Group}

	chat, err := call(b.handle, func(c Client) (domain.Chat, error) {
		return c.ResolveChat(ctx, req.Group)
	})
	if err != nil {
		out.Err = err
		return out
	}

	var src members.PageSource
	_ = b.handle.Do(func(c Client) error {
		src = c.ListMembers(chat)
		return nil
	})

	list, err := members.Drain(ctx, lockedSource{h: b.handle, src: src}, func(loaded, total int) {
		job.reply.setProgress(loaded, total)
		log.Debug(fmt.Sprintf("Download [%d/%d]", loaded, total), "group", req.Group)
	})
	out.Members = list
	_, out.Total = job.reply.Progress()
	if out.Total < len(list) {
		out.Total = len(list)
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		out.Err = ctx.Err()
	default:
		log.Warn("Member download stopped early", "group", req.Group, "retrieved", len(list), "error", err)
		out.Truncated = err
	}

	log.Info("Members fetched", "group", req.Group, "count", len(list), "reported_total", out.Total)
	return out
}

// exportMembers writes the rows to a CSV file. File I/O does not touch the client.
func exportMembers(ctx context.Context, b *Bridge, req ExportMembers, _ *Job, log *slog.Logger) Outcome {
	out := Outcome{Group: req.Group}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}
	if req.Rows == nil {
		out.Err = errors.New("export: no rows")
		return out
	}

	dir := req.Dir
	if dir == "" {
		dir = b.outputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		out.Err = fmt.Errorf("failed to create output directory: %w", err)
		return out
	}

	path, err := members.Export(dir, req.Group, req.Rows)
	out.Path = path
	if err != nil {
		out.Err = err
		return out
	}
	log.Info("Members exported", "group", req.Group, "path", path)
	return out
}
