package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/finsight-core-v1/server/internal/agent/graph"
	"github.com/finsight-core-v1/server/internal/agent/model"
	"github.com/finsight-core-v1/server/internal/agent/repo"
	"github.com/finsight-core-v1/server/internal/agent/tools"
	"github.com/finsight-core-v1/server/internal/core"
	logx "github.com/finsight-core-v1/server/pkg/logger"
	pkgredis "github.com/finsight-core-v1/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Workflow configs
	LLM      model.LLMConfig
	Session  model.SessionConfig
	Workflow model.WorkflowConfig
	Tool     model.ToolConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		Level:       envCfg.LogLevel,
	})

	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(envCfg.Session.TTL)
	if err != nil {
		log.Fatalf("Invalid SESSION_TTL '%s': %v", envCfg.Session.TTL, err)
	}

	sessionRepo := repo.NewRedisSessionRepository(rdb, ttl)

	runner, err := graph.BuildWorkflow(ctx, graph.Config{
		APIKey:   envCfg.APIKey,
		BaseURL:  envCfg.BaseURL,
		LLM:      envCfg.LLM,
		Session:  envCfg.Session,
		Workflow: envCfg.Workflow,
		Tool:     envCfg.Tool,
		Repo:     sessionRepo,
		Market:   tools.NewMemoryMarketData(),
		Index:    tools.NewMemoryDocumentIndex(),
		Renderer: tools.NewFileRenderer(),
	})
	if err != nil {
		log.Fatalf("Failed to build workflow: %v", err)
	}

	cli := &cli{
		runner:    runner,
		repo:      sessionRepo,
		sessionID: uuid.NewString(),
	}
	cli.run(ctx)
}

type cli struct {
	runner    graph.Runner
	repo      model.SessionRepository
	sessionID string
}

func (c *cli) run(ctx context.Context) {
	fmt.Println("금융 AI 어시스턴트입니다. 질문을 입력하세요. 명령어는 /help 로 확인할 수 있습니다.")
	fmt.Printf("세션: %s\n", c.sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := c.command(ctx, line); done {
				return
			}
			continue
		}

		c.ask(ctx, line)
	}
}

// command handles one slash command; returns true on /exit.
func (c *cli) command(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		fmt.Println("안녕히 가세요.")
		return true
	case "/help":
		fmt.Println(`명령어:
  /new            새 세션을 시작합니다
  /history        현재 세션의 대화 기록을 표시합니다
  /sessions       저장된 세션 목록을 표시합니다
  /load <id>      저장된 세션으로 전환합니다
  /exit           종료합니다`)
	case "/new":
		c.sessionID = uuid.NewString()
		fmt.Printf("새 세션: %s\n", c.sessionID)
	case "/history":
		c.printHistory(ctx)
	case "/sessions":
		c.printSessions(ctx)
	case "/load":
		if arg == "" {
			fmt.Println("사용법: /load <session-id>")
			break
		}
		c.sessionID = arg
		fmt.Printf("세션 전환: %s\n", c.sessionID)
		c.printHistory(ctx)
	default:
		fmt.Printf("알 수 없는 명령어: %s (/help 참고)\n", cmd)
	}
	return false
}

func (c *cli) ask(ctx context.Context, question string) {
	start := time.Now()
	result, err := c.runner.Ask(ctx, c.sessionID, question)
	if err != nil {
		logx.Error().Err(err).Msg("workflow run failed")
		fmt.Println("죄송합니다. 요청을 처리하는 중 문제가 발생했습니다.")
		return
	}

	fmt.Println()
	fmt.Println(result.Answer)
	fmt.Println()
	logx.Debug().
		Bool("quality_passed", result.QualityPassed).
		Int("retries", result.Retries).
		Dur("elapsed", time.Since(start)).
		Msg("turn finished")
}

func (c *cli) printHistory(ctx context.Context) {
	history, err := c.repo.LoadHistory(ctx, c.sessionID)
	if err != nil {
		fmt.Println("기록을 불러오지 못했습니다.")
		return
	}
	if len(history.Turns) == 0 {
		fmt.Println("기록이 없습니다.")
		return
	}
	for _, t := range history.Turns {
		prefix := "사용자"
		if t.Role == model.TurnRoleAssistant {
			prefix = "어시스턴트"
		}
		fmt.Printf("[%s] %s\n", prefix, t.Content)
	}
}

func (c *cli) printSessions(ctx context.Context) {
	infos, err := c.repo.ListSessions(ctx, 20)
	if err != nil {
		fmt.Println("세션 목록을 불러오지 못했습니다.")
		return
	}
	if len(infos) == 0 {
		fmt.Println("저장된 세션이 없습니다.")
		return
	}
	for _, info := range infos {
		fmt.Printf("%s  (%d개 턴)  %s\n", info.SessionID, info.TurnCount, info.Preview)
	}
}
