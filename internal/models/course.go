package models

// Типы блоков контента урока.
const (
	BlockTypeText  = "text"
	BlockTypeImage = "image"
	BlockTypeVideo = "video"
)

// LessonBlock — один блок контента урока; заполнены только поля,
// соответствующие BlockType.
type LessonBlock struct {
	ID           int64    `json:"id"`
	BlockType    string   `json:"block_type"`
	OrderIndex   int      `json:"order_index"`
	TextMarkdown string   `json:"text_markdown"`
	ImageURLs    []string `json:"image_urls"`
	VideoURL     string   `json:"video_url"`
	Links        []string `json:"links"`
}

// Lesson — урок внутри главы; Blocks присутствуют только в детальных ответах.
type Lesson struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	Slug          string        `json:"slug"`
	Number        int           `json:"number"`
	OrderIndex    int           `json:"order_index"`
	IsFreePreview bool          `json:"is_free_preview"`
	Blocks        []LessonBlock `json:"blocks"`
}

// Chapter — глава курса с упорядоченными уроками.
type Chapter struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	OrderIndex int      `json:"order_index"`
	Lessons    []Lesson `json:"lessons"`
}

// Course — курс каталога вместе с деревом глав/уроков.
type Course struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	Slug                string    `json:"slug"`
	DescriptionMarkdown string    `json:"description_markdown"`
	ImageURL            string    `json:"image_url"`
	Chapters            []Chapter `json:"chapters"`
}

// CourseProgress — сводка прохождения курса пользователем.
type CourseProgress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// LessonRef — указатель на урок (последний начатый и не завершённый).
type LessonRef struct {
	CourseSlug  string `json:"course_slug"`
	ChapterSlug string `json:"chapter_slug"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
}

// NextLesson — следующий доступный урок курса; AllCompleted выставляется,
// когда пройдены все уроки (возвращается последний).
type NextLesson struct {
	CourseSlug    string `json:"course_slug"`
	ChapterSlug   string `json:"chapter_slug"`
	Number        int    `json:"number"`
	Title         string `json:"title"`
	IsFreePreview bool   `json:"is_free_preview"`
	AllCompleted  bool   `json:"all_completed"`
}

// LessonStatus — статус одного урока в сводке по курсу.
type LessonStatus struct {
	LessonID      int64  `json:"lesson_id"`
	ChapterSlug   string `json:"chapter_slug"`
	Number        int    `json:"number"`
	Title         string `json:"title"`
	IsCompleted   bool   `json:"is_completed"`
	IsNext        bool   `json:"is_next"`
	IsFreePreview bool   `json:"is_free_preview"`
}

// CheckoutSession — сессия оплаты, созданная платёжным провайдером;
// дальнейший checkout происходит на стороне провайдера.
type CheckoutSession struct {
	ID string `json:"id"`
}
