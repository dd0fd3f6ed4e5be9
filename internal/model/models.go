package model

import (
	"database/sql"

	"cs-go/internal/schema"
)

// Kind names, also used as table names.
const (
	KindCourse       = "courses"
	KindFolder       = "folders"
	KindFile         = "files"
	KindExternalLink = "external_links"
)

// Entity is a persisted catalog record keyed by its remote identifier.
type Entity interface {
	Kind() string
	// Record returns the id plus every field that is set. Unset fields are
	// omitted so an upsert never clears stored values.
	Record() schema.Record
}

// Course is the root of traversal. Rows are created from the favorites feed.
type Course struct {
	ID         int64
	Name       sql.NullString
	Code       sql.NullString
	Term       sql.NullString
	IsFavorite sql.NullBool
	UpdatedAt  sql.NullString
	SavedAt    sql.NullString
}

func (c *Course) Kind() string { return KindCourse }

func (c *Course) Record() schema.Record {
	r := schema.Record{schema.IDField: c.ID}
	putString(r, "name", c.Name)
	putString(r, "code", c.Code)
	putString(r, "term", c.Term)
	putBool(r, "is_favorite", c.IsFavorite)
	putString(r, schema.UpdatedAtField, c.UpdatedAt)
	putString(r, schema.SavedAtField, c.SavedAt)
	return r
}

// Pending reports whether the course has remote changes not yet traversed.
func (c *Course) Pending() bool { return IsPending(c.UpdatedAt, c.SavedAt) }

// CourseFromRecord builds a Course from a stored record.
func CourseFromRecord(r schema.Record) *Course {
	return &Course{
		ID:         getInt(r, schema.IDField).Int64,
		Name:       getString(r, "name"),
		Code:       getString(r, "code"),
		Term:       getString(r, "term"),
		IsFavorite: getBool(r, "is_favorite"),
		UpdatedAt:  getString(r, schema.UpdatedAtField),
		SavedAt:    getString(r, schema.SavedAtField),
	}
}

// Folder is a remote container of files.
type Folder struct {
	ID         int64
	FullName   sql.NullString
	FilesCount sql.NullInt64
	CourseID   sql.NullInt64
	ParentID   sql.NullInt64
	UpdatedAt  sql.NullString
	SavedAt    sql.NullString
}

func (f *Folder) Kind() string { return KindFolder }

func (f *Folder) Record() schema.Record {
	r := schema.Record{schema.IDField: f.ID}
	putString(r, "full_name", f.FullName)
	putInt(r, "files_count", f.FilesCount)
	putInt(r, "course_id", f.CourseID)
	putInt(r, "parent_id", f.ParentID)
	putString(r, schema.UpdatedAtField, f.UpdatedAt)
	putString(r, schema.SavedAtField, f.SavedAt)
	return r
}

// Pending reports whether the folder's entries need to be fetched.
func (f *Folder) Pending() bool { return IsPending(f.UpdatedAt, f.SavedAt) }

// FolderFromRecord builds a Folder from a stored record.
func FolderFromRecord(r schema.Record) *Folder {
	return &Folder{
		ID:         getInt(r, schema.IDField).Int64,
		FullName:   getString(r, "full_name"),
		FilesCount: getInt(r, "files_count"),
		CourseID:   getInt(r, "course_id"),
		ParentID:   getInt(r, "parent_id"),
		UpdatedAt:  getString(r, schema.UpdatedAtField),
		SavedAt:    getString(r, schema.SavedAtField),
	}
}

// File is a downloadable entry. It is discovered either through a module
// (ModuleName set) or through a folder (FolderID set), never both.
type File struct {
	ID          int64
	DisplayName sql.NullString
	DownloadURL sql.NullString
	CourseID    sql.NullInt64
	FolderID    sql.NullInt64
	ModuleName  sql.NullString
	UpdatedAt   sql.NullString
	SavedAt     sql.NullString
}

func (f *File) Kind() string { return KindFile }

func (f *File) Record() schema.Record {
	r := schema.Record{schema.IDField: f.ID}
	putString(r, "display_name", f.DisplayName)
	putString(r, "download_url", f.DownloadURL)
	putInt(r, "course_id", f.CourseID)
	putInt(r, "folder_id", f.FolderID)
	putString(r, "module_name", f.ModuleName)
	putString(r, schema.UpdatedAtField, f.UpdatedAt)
	putString(r, schema.SavedAtField, f.SavedAt)
	return r
}

// Pending reports whether the file needs to be downloaded.
func (f *File) Pending() bool { return IsPending(f.UpdatedAt, f.SavedAt) }

// FileFromRecord builds a File from a stored record.
func FileFromRecord(r schema.Record) *File {
	return &File{
		ID:          getInt(r, schema.IDField).Int64,
		DisplayName: getString(r, "display_name"),
		DownloadURL: getString(r, "download_url"),
		CourseID:    getInt(r, "course_id"),
		FolderID:    getInt(r, "folder_id"),
		ModuleName:  getString(r, "module_name"),
		UpdatedAt:   getString(r, schema.UpdatedAtField),
		SavedAt:     getString(r, schema.SavedAtField),
	}
}

// ExternalLink is a module item pointing at an external URL.
type ExternalLink struct {
	ID         int64
	URL        sql.NullString
	Title      sql.NullString
	CourseID   sql.NullInt64
	ModuleName sql.NullString
	UpdatedAt  sql.NullString
	SavedAt    sql.NullString
}

func (l *ExternalLink) Kind() string { return KindExternalLink }

func (l *ExternalLink) Record() schema.Record {
	r := schema.Record{schema.IDField: l.ID}
	putString(r, "url", l.URL)
	putString(r, "title", l.Title)
	putInt(r, "course_id", l.CourseID)
	putString(r, "module_name", l.ModuleName)
	putString(r, schema.UpdatedAtField, l.UpdatedAt)
	putString(r, schema.SavedAtField, l.SavedAt)
	return r
}

// Pending reports whether the link's artifact needs to be written.
func (l *ExternalLink) Pending() bool { return IsPending(l.UpdatedAt, l.SavedAt) }

// ExternalLinkFromRecord builds an ExternalLink from a stored record.
func ExternalLinkFromRecord(r schema.Record) *ExternalLink {
	return &ExternalLink{
		ID:         getInt(r, schema.IDField).Int64,
		URL:        getString(r, "url"),
		Title:      getString(r, "title"),
		CourseID:   getInt(r, "course_id"),
		ModuleName: getString(r, "module_name"),
		UpdatedAt:  getString(r, schema.UpdatedAtField),
		SavedAt:    getString(r, schema.SavedAtField),
	}
}

// String, Int and Bool build set nullable values.
func String(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
func Int(i int64) sql.NullInt64      { return sql.NullInt64{Int64: i, Valid: true} }
func Bool(b bool) sql.NullBool       { return sql.NullBool{Bool: b, Valid: true} }

func putString(r schema.Record, key string, v sql.NullString) {
	if v.Valid {
		r[key] = v.String
	}
}

func putInt(r schema.Record, key string, v sql.NullInt64) {
	if v.Valid {
		r[key] = v.Int64
	}
}

func putBool(r schema.Record, key string, v sql.NullBool) {
	if v.Valid {
		r[key] = v.Bool
	}
}

func getString(r schema.Record, key string) sql.NullString {
	s, ok := r[key].(string)
	return sql.NullString{String: s, Valid: ok}
}

func getInt(r schema.Record, key string) sql.NullInt64 {
	i, ok := r[key].(int64)
	return sql.NullInt64{Int64: i, Valid: ok}
}

func getBool(r schema.Record, key string) sql.NullBool {
	b, ok := r[key].(bool)
	return sql.NullBool{Bool: b, Valid: ok}
}
