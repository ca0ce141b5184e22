package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	_ "go.uber.org/automaxprocs"

	"github.com/oconnor0/tutkain/application"
	"github.com/oconnor0/tutkain/internal/json"
	"github.com/oconnor0/tutkain/internal/nrepl"
	"github.com/oconnor0/tutkain/pkg/log"
	"github.com/oconnor0/tutkain/pkg/util/conc"
	"github.com/oconnor0/tutkain/pkg/util/retry"
)

const defaultScope int64 = 0

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := application.New()
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tutkain: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, app); err != nil {
		fmt.Fprintf(os.Stderr, "tutkain: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *application.Application) error {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown did not complete cleanly", zap.Error(err))
		}
	}()

	server := app.Server()
	client, err := app.Manager().Connect(ctx, server.Host, server.Port, defaultScope)
	if err != nil {
		return fmt.Errorf("connect to %s:%d: %w", server.Host, server.Port, err)
	}

	session, err := app.Manager().CloneSession(ctx, defaultScope, "repl")
	if err != nil {
		return err
	}

	info, err := describe(ctx, session)
	if err != nil {
		return err
	}
	printBanner(info)

	// 未被任何会话认领的响应从通用接收队列里取出并打印。
	_ = conc.Go(func() (struct{}, error) {
		for {
			resp, err := client.Recv()
			if err != nil {
				return struct{}{}, nil
			}
			printResponse(resp)
		}
	})

	return evalLoop(ctx, session)
}

// describe 探测远端能力。刚建立的连接上远端可能尚未就绪，短暂重试。
func describe(ctx context.Context, session *nrepl.Session) (*nrepl.ServerInfo, error) {
	var info *nrepl.ServerInfo
	err := retry.Do(ctx, func() error {
		done := make(chan nrepl.Response, 1)
		if err := session.Send(nrepl.Describe(), func(resp nrepl.Response) {
			if resp.HasStatus(nrepl.StatusDone) {
				select {
				case done <- resp:
				default:
				}
			}
		}); err != nil {
			return retry.Unrecoverable(err)
		}

		select {
		case resp := <-done:
			parsed, err := nrepl.ParseServerInfo(resp)
			if err != nil {
				return err
			}
			info = parsed
			return nil
		case <-time.After(3 * time.Second):
			return fmt.Errorf("describe timed out")
		case <-ctx.Done():
			return retry.Unrecoverable(ctx.Err())
		}
	}, retry.Attempts(3))
	return info, err
}

func printBanner(info *nrepl.ServerInfo) {
	versions, err := json.MarshalIndent(info.Versions, "", "  ")
	if err != nil {
		return
	}
	fmt.Printf("connected; server versions:\n%s\n", versions)
}

// evalLoop 按行读取标准输入，每行作为一段代码求值。
func evalLoop(ctx context.Context, session *nrepl.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	fmt.Print("=> ")
	for scanner.Scan() {
		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			fmt.Print("=> ")
			continue
		}
		if code == ":quit" {
			break
		}

		done := make(chan struct{})
		err := session.Send(nrepl.Eval(code), func(resp nrepl.Response) {
			printResponse(resp)
			if resp.HasStatus(nrepl.StatusDone) {
				close(done)
			}
		})
		if err != nil {
			return err
		}

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		fmt.Print("=> ")
	}
	fmt.Println()
	return scanner.Err()
}

// printResponse 渲染一条响应中面向用户的字段。
func printResponse(resp nrepl.Response) {
	if out, ok := resp["out"].(string); ok {
		fmt.Print(out)
	}
	if errOut, ok := resp["err"].(string); ok {
		fmt.Fprint(os.Stderr, errOut)
	}
	if value, ok := resp["value"].(string); ok {
		fmt.Println(value)
	}
}
