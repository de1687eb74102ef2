package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"sugang/internal/config"
	"sugang/internal/db"
	"sugang/internal/logger"
	"sugang/internal/model"
	"sugang/internal/repository"
)

// SeedCourseData is one course in a seed file. Status defaults to AutoApplied
// so seeded courses behave as pre-registered successes.
type SeedCourseData struct {
	OrderNo    int    `json:"order_no"`
	CourseName string `json:"course_name"`
	CourseCode string `json:"course_code"`
	ClassNo    string `json:"class_no"`
	CourseType string `json:"course_type"`
	Credit     int    `json:"credit"`
	Professor  string `json:"professor"`
	Department string `json:"department"`
	TimeInfo   string `json:"time_info"`
	Memo       string `json:"memo"`
	Status     *int   `json:"status"`
}

func main() {
	user := flag.String("user", "", "Student id that owns the seeded courses")
	source := flag.String("file", "", "Path or http(s) URL of a JSON array of courses")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if *user == "" || *source == "" {
		flag.Usage()
		log.Fatal("both -user and -file are required")
	}

	log.Info("starting seed", zap.String("user", *user), zap.String("source", *source))

	gormDB, err := db.NewMySQL(cfg.MySQL, log)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	if err := db.Migrate(gormDB, false, log); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	ctx := context.Background()
	if _, err := repository.NewUserRepository(gormDB).FindByID(ctx, *user); err != nil {
		log.Fatal("seed owner must exist, create it with adduser first", zap.String("user", *user), zap.Error(err))
	}

	items, err := loadSeed(*source)
	if err != nil {
		log.Fatal("load seed", zap.Error(err))
	}
	courses, skipped := toCourses(*user, items)
	if skipped > 0 {
		log.Warn("skipped invalid courses", zap.Int("count", skipped))
	}

	created, updated, err := seedCourses(ctx, repository.NewCourseRepository(gormDB), *user, courses)
	if err != nil {
		log.Fatal("seed courses", zap.Error(err))
	}

	log.Info("seed completed",
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("total", created+updated),
	)
}

// loadSeed reads seed data from a local file or an http(s) URL.
func loadSeed(source string) ([]SeedCourseData, error) {
	var r io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch seed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("seed source returned status code: %d", resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open seed: %w", err)
		}
		r = f
	}
	defer r.Close()

	return parseSeed(r)
}

func parseSeed(r io.Reader) ([]SeedCourseData, error) {
	var items []SeedCourseData
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("parse seed JSON: %w", err)
	}
	return items, nil
}

// toCourses converts seed items, dropping those without a name or with an
// unknown status.
func toCourses(userID string, items []SeedCourseData) ([]model.Course, int) {
	courses := make([]model.Course, 0, len(items))
	skipped := 0
	for _, item := range items {
		status := model.CourseStatusAutoApplied
		if item.Status != nil {
			status = model.CourseStatus(*item.Status)
		}
		if strings.TrimSpace(item.CourseName) == "" || !status.Valid() {
			skipped++
			continue
		}
		credit := item.Credit
		if credit == 0 {
			credit = model.DefaultCredit
		}
		courses = append(courses, model.Course{
			UserID:     userID,
			OrderNo:    item.OrderNo,
			CourseName: item.CourseName,
			CourseCode: item.CourseCode,
			ClassNo:    item.ClassNo,
			CourseType: item.CourseType,
			Credit:     credit,
			Professor:  item.Professor,
			Department: item.Department,
			TimeInfo:   item.TimeInfo,
			Memo:       item.Memo,
			Status:     status,
		})
	}
	return courses, skipped
}

// seedCourses creates new courses or updates existing ones. A course matches
// an existing one by code and class number, or by name when it has no code.
func seedCourses(ctx context.Context, repo repository.CourseRepository, userID string, courses []model.Course) (created int, updated int, err error) {
	existing, err := repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("list existing courses: %w", err)
	}
	index := make(map[string]model.Course, len(existing))
	for _, c := range existing {
		index[seedKey(c)] = c
	}

	for _, course := range courses {
		if prev, ok := index[seedKey(course)]; ok {
			course.ID = prev.ID
			if err := repo.Update(ctx, &course); err != nil {
				return created, updated, fmt.Errorf("update course %q: %w", course.CourseName, err)
			}
			updated++
			continue
		}
		if err := repo.Create(ctx, &course); err != nil {
			return created, updated, fmt.Errorf("create course %q: %w", course.CourseName, err)
		}
		index[seedKey(course)] = course
		created++
	}
	return created, updated, nil
}

func seedKey(c model.Course) string {
	if c.CourseCode == "" {
		return "name:" + c.CourseName
	}
	return "code:" + c.CourseCode + "/" + c.ClassNo
}
