package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/learncamera/camera101-client/internal/models"
)

// Courses возвращает каталог курсов с деревом глав/уроков.
// Эндпойнт публичный, но токен (при наличии) прикладывается как обычно.
func (c *Client) Courses(ctx context.Context) ([]models.Course, error) {
	const op = "client.Courses"

	var out []models.Course
	if _, err := c.call(ctx, http.MethodGet, "/api/courses/", nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// CourseBySlug возвращает курс по слагу.
func (c *Client) CourseBySlug(ctx context.Context, slug string) (*models.Course, error) {
	const op = "client.CourseBySlug"

	var out models.Course
	path := fmt.Sprintf("/api/courses/%s/", url.PathEscape(slug))
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// LessonByNumber возвращает урок с блоками контента.
func (c *Client) LessonByNumber(ctx context.Context, courseSlug, chapterSlug string, number int) (*models.Lesson, error) {
	const op = "client.LessonByNumber"

	var out models.Lesson
	path := lessonPath(courseSlug, chapterSlug, number, "")
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// StartLesson отмечает начало прохождения урока.
func (c *Client) StartLesson(ctx context.Context, courseSlug, chapterSlug string, number int) error {
	const op = "client.StartLesson"

	path := lessonPath(courseSlug, chapterSlug, number, "start/")
	if _, err := c.call(ctx, http.MethodPost, path, nil, nil, callOpts{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// CompleteLesson отмечает урок завершённым; повторный вызов безвреден.
func (c *Client) CompleteLesson(ctx context.Context, courseSlug, chapterSlug string, number int) error {
	const op = "client.CompleteLesson"

	path := lessonPath(courseSlug, chapterSlug, number, "complete/")
	if _, err := c.call(ctx, http.MethodPost, path, nil, nil, callOpts{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LastIncompleteLesson возвращает последний начатый и не завершённый урок;
// (nil, nil) — такого нет (ответ 204).
func (c *Client) LastIncompleteLesson(ctx context.Context) (*models.LessonRef, error) {
	const op = "client.LastIncompleteLesson"

	var out models.LessonRef
	status, err := c.call(ctx, http.MethodGet, "/api/courses/progress/last-incomplete/", nil, &out, callOpts{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusNoContent {
		return nil, nil
	}

	return &out, nil
}

// CourseProgress возвращает сводку прохождения курса пользователем.
func (c *Client) CourseProgress(ctx context.Context, courseSlug string) (*models.CourseProgress, error) {
	const op = "client.CourseProgress"

	var out models.CourseProgress
	path := fmt.Sprintf("/api/courses/%s/progress/", url.PathEscape(courseSlug))
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// NextLesson возвращает следующий доступный урок курса.
func (c *Client) NextLesson(ctx context.Context, courseSlug string) (*models.NextLesson, error) {
	const op = "client.NextLesson"

	var out models.NextLesson
	path := fmt.Sprintf("/api/courses/%s/next-lesson/", url.PathEscape(courseSlug))
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &out, nil
}

// lessonStatusesResponse — обёртка ответа lesson-statuses.
type lessonStatusesResponse struct {
	CourseSlug     string                `json:"course_slug"`
	LessonStatuses []models.LessonStatus `json:"lesson_statuses"`
}

// LessonStatuses возвращает статусы всех уроков курса для пользователя.
func (c *Client) LessonStatuses(ctx context.Context, courseSlug string) ([]models.LessonStatus, error) {
	const op = "client.LessonStatuses"

	var out lessonStatusesResponse
	path := fmt.Sprintf("/api/courses/%s/lesson-statuses/", url.PathEscape(courseSlug))
	if _, err := c.call(ctx, http.MethodGet, path, nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out.LessonStatuses, nil
}

// lessonPath собирает путь урока с опциональным действием (start/, complete/).
func lessonPath(courseSlug, chapterSlug string, number int, action string) string {
	return fmt.Sprintf("/api/courses/%s/%s/%d/%s",
		url.PathEscape(courseSlug), url.PathEscape(chapterSlug), number, action)
}
