// camera101 — CLI-клиент платформы фотокурсов: вход/регистрация,
// каталог курсов, просмотр уроков, прогресс и создание сессии оплаты.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/learncamera/camera101-client/internal/client"
	"github.com/learncamera/camera101-client/internal/config"
	"github.com/learncamera/camera101-client/internal/events"
	"github.com/learncamera/camera101-client/internal/models"
	logctx "github.com/learncamera/camera101-client/internal/pkg/log"
	"github.com/learncamera/camera101-client/internal/session"
	"github.com/learncamera/camera101-client/internal/storage"
	filestore "github.com/learncamera/camera101-client/internal/storage/file"
	memstore "github.com/learncamera/camera101-client/internal/storage/memory"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const usage = `usage: camera101 [flags] <command> [args]

commands:
  login <email>                       вход (пароль запрашивается со stdin)
  register <username> <email>         регистрация + вход
  logout                              локальный выход
  whoami                              текущий пользователь
  courses                             каталог курсов
  course <slug>                       курс с главами и уроками
  lesson <course> <chapter> <n>       контент урока
  start <course> <chapter> <n>        отметить урок начатым
  complete <course> <chapter> <n>     отметить урок завершённым
  progress <slug>                     прогресс по курсу
  next <slug>                         следующий доступный урок
  statuses <slug>                     статусы всех уроков курса
  resume                              последний незавершённый урок
  buy                                 создать сессию оплаты
  doctor                              проверка API и принудительный refresh

flags:
  -config string   путь к файлу конфигурации
  -no-persist      не сохранять сессию на диск
`

func main() {
	var configPath string
	var noPersist bool
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.BoolVar(&noPersist, "no-persist", false, "keep session in memory only")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	store, err := buildStorage(cfg, noPersist)
	if err != nil {
		log.Error("storage_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	bus := events.New(log)

	// Сигнал истечения может подняться посреди команды — сообщаем явно.
	unsubscribe := bus.Subscribe(func() {
		fmt.Fprintln(os.Stderr, "session expired, please login again")
	})
	defer unsubscribe()

	cl, err := client.New(cfg.API, store, bus, log)
	if err != nil {
		log.Error("client_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	sess := session.New(cl, store, bus, log)
	defer sess.Close()

	if err := sess.Init(rootCtx); err != nil {
		// Битый файл сессии не должен блокировать CLI: продолжаем без сессии.
		log.Warn("session_init_failed", slog.String("err", err.Error()))
	}

	ctx := logctx.Into(rootCtx, log.With(slog.String("command", args[0])))

	app := &app{client: cl, session: sess, out: os.Stdout}
	if err := app.run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}

// buildStorage выбирает хранилище сессии: файл (по умолчанию) или память.
func buildStorage(cfg *config.Config, noPersist bool) (storage.TokenStorage, error) {
	if noPersist {
		return memstore.New(), nil
	}

	path, err := cfg.Store.ResolvePath()
	if err != nil {
		return nil, err
	}

	return filestore.New(path)
}

// app агрегирует зависимости команд.
type app struct {
	client  *client.Client
	session *session.Service
	out     *os.File
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		a.session.Logout(ctx)
		fmt.Fprintln(a.out, "logged out")
		return nil
	case "whoami":
		return a.whoami()
	case "courses":
		return a.courses(ctx)
	case "course":
		return a.course(ctx, args)
	case "lesson":
		return a.lesson(ctx, args)
	case "start":
		return a.lessonAction(ctx, args, a.client.StartLesson, "started")
	case "complete":
		return a.lessonAction(ctx, args, a.client.CompleteLesson, "completed")
	case "progress":
		return a.progress(ctx, args)
	case "next":
		return a.next(ctx, args)
	case "statuses":
		return a.statuses(ctx, args)
	case "resume":
		return a.resume(ctx)
	case "buy":
		return a.buy(ctx)
	case "doctor":
		return a.doctor(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: login <email>")
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	if !a.session.Login(ctx, args[0], password) {
		return fmt.Errorf("login failed: %s", formatFieldErrors(a.session.Errors()))
	}

	fmt.Fprintf(a.out, "logged in as %s\n", a.session.User().Identifier)

	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: register <username> <email>")
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	if !a.session.Register(ctx, args[0], args[1], password) {
		return fmt.Errorf("registration failed: %s", formatFieldErrors(a.session.Errors()))
	}

	fmt.Fprintf(a.out, "registered and logged in as %s\n", a.session.User().Identifier)

	return nil
}

func (a *app) whoami() error {
	if !a.session.IsAuthenticated() {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}

	fmt.Fprintln(a.out, a.session.User().Identifier)

	return nil
}

func (a *app) courses(ctx context.Context) error {
	courses, err := a.client.Courses(ctx)
	if err != nil {
		return err
	}

	for _, c := range courses {
		lessons := 0
		for _, ch := range c.Chapters {
			lessons += len(ch.Lessons)
		}
		fmt.Fprintf(a.out, "%-24s %s (%d chapters, %d lessons)\n", c.Slug, c.Title, len(c.Chapters), lessons)
	}

	return nil
}

func (a *app) course(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: course <slug>")
	}

	c, err := a.client.CourseBySlug(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (%s)\n", c.Title, c.Slug)
	for _, ch := range c.Chapters {
		fmt.Fprintf(a.out, "  %s (%s)\n", ch.Title, ch.Slug)
		for _, l := range ch.Lessons {
			marker := ""
			if l.IsFreePreview {
				marker = " [free]"
			}
			fmt.Fprintf(a.out, "    %2d. %s%s\n", l.Number, l.Title, marker)
		}
	}

	return nil
}

func (a *app) lesson(ctx context.Context, args []string) error {
	courseSlug, chapterSlug, number, err := lessonArgs(args, "lesson")
	if err != nil {
		return err
	}

	l, err := a.client.LessonByNumber(ctx, courseSlug, chapterSlug, number)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d. %s\n", l.Number, l.Title)
	for _, b := range l.Blocks {
		switch b.BlockType {
		case models.BlockTypeText:
			fmt.Fprintln(a.out, b.TextMarkdown)
		case models.BlockTypeImage:
			for _, u := range b.ImageURLs {
				fmt.Fprintf(a.out, "[image] %s\n", u)
			}
		case models.BlockTypeVideo:
			fmt.Fprintf(a.out, "[video] %s\n", b.VideoURL)
		}
	}

	return nil
}

func (a *app) lessonAction(ctx context.Context, args []string, fn func(context.Context, string, string, int) error, verb string) error {
	courseSlug, chapterSlug, number, err := lessonArgs(args, verb)
	if err != nil {
		return err
	}

	if err := fn(ctx, courseSlug, chapterSlug, number); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "lesson %s/%s/%d %s\n", courseSlug, chapterSlug, number, verb)

	return nil
}

func (a *app) progress(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: progress <slug>")
	}

	p, err := a.client.CourseProgress(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d/%d lessons completed (%.1f%%)\n", p.Completed, p.Total, p.Percentage)

	return nil
}

func (a *app) next(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: next <slug>")
	}

	n, err := a.client.NextLesson(ctx, args[0])
	if err != nil {
		return err
	}

	if n.AllCompleted {
		fmt.Fprintln(a.out, "course completed")
		return nil
	}

	fmt.Fprintf(a.out, "%s/%s/%d %s\n", n.CourseSlug, n.ChapterSlug, n.Number, n.Title)

	return nil
}

func (a *app) statuses(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: statuses <slug>")
	}

	statuses, err := a.client.LessonStatuses(ctx, args[0])
	if err != nil {
		return err
	}

	for _, s := range statuses {
		mark := " "
		switch {
		case s.IsCompleted:
			mark = "x"
		case s.IsNext:
			mark = ">"
		}
		fmt.Fprintf(a.out, "[%s] %s/%d %s\n", mark, s.ChapterSlug, s.Number, s.Title)
	}

	return nil
}

func (a *app) resume(ctx context.Context) error {
	ref, err := a.client.LastIncompleteLesson(ctx)
	if err != nil {
		return err
	}

	if ref == nil {
		fmt.Fprintln(a.out, "no lesson in progress")
		return nil
	}

	fmt.Fprintf(a.out, "%s/%s/%d %s\n", ref.CourseSlug, ref.ChapterSlug, ref.Number, ref.Title)

	return nil
}

func (a *app) buy(ctx context.Context) error {
	cs, err := a.client.CreateCheckoutSession(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "checkout session: %s\n", cs.ID)

	return nil
}

func (a *app) doctor(ctx context.Context) error {
	if err := a.client.Health(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "api: ok")

	if !a.session.IsAuthenticated() {
		fmt.Fprintln(a.out, "session: none")
		return nil
	}

	if _, err := a.client.RefreshToken(ctx); err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	fmt.Fprintln(a.out, "session: refreshed")

	return nil
}

// lessonArgs разбирает аргументы <course> <chapter> <n>.
func lessonArgs(args []string, verb string) (string, string, int, error) {
	if len(args) != 3 {
		return "", "", 0, fmt.Errorf("usage: %s <course> <chapter> <n>", verb)
	}

	number, err := strconv.Atoi(args[2])
	if err != nil || number < 1 {
		return "", "", 0, fmt.Errorf("lesson number must be a positive integer, got %q", args[2])
	}

	return args[0], args[1], number, nil
}

// readPassword читает пароль со stdin (строкой; без echo-магии, чтобы
// CLI работал и в пайпах).
func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// formatFieldErrors — компактный вывод карты ошибок в одну строку.
func formatFieldErrors(errs models.FieldErrors) string {
	if errs.Empty() {
		return "unknown error"
	}

	parts := make([]string, 0, len(errs))
	for _, field := range errs.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(errs[field], "; ")))
	}

	return strings.Join(parts, ", ")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
