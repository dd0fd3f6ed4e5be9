package model

import (
	"fmt"

	"cs-go/internal/schema"
)

// Kinds declares the four catalog kinds in traversal order.
func Kinds() []schema.Kind {
	id := schema.Field{Name: schema.IDField, Type: schema.Integer}
	updated := schema.Field{Name: schema.UpdatedAtField, Type: schema.Timestamp, Nullable: true}
	saved := schema.Field{Name: schema.SavedAtField, Type: schema.Timestamp, Nullable: true}
	courseID := schema.Field{Name: "course_id", Type: schema.Integer}

	return []schema.Kind{
		{
			Name: KindCourse,
			Fields: []schema.Field{
				id,
				{Name: "name", Type: schema.Text, Nullable: true},
				{Name: "code", Type: schema.Text, Nullable: true},
				{Name: "term", Type: schema.Text, Nullable: true},
				{Name: "is_favorite", Type: schema.Boolean, Nullable: true},
				updated,
				saved,
			},
			TracksSaves: true,
		},
		{
			Name: KindFolder,
			Fields: []schema.Field{
				id,
				{Name: "full_name", Type: schema.Text, Nullable: true},
				{Name: "files_count", Type: schema.Integer, Nullable: true},
				courseID,
				{Name: "parent_id", Type: schema.Integer, Nullable: true},
				updated,
				saved,
			},
			TracksSaves: true,
		},
		{
			Name: KindFile,
			Fields: []schema.Field{
				id,
				{Name: "display_name", Type: schema.Text, Nullable: true},
				{Name: "download_url", Type: schema.Text, Nullable: true},
				courseID,
				{Name: "folder_id", Type: schema.Integer, Nullable: true},
				{Name: "module_name", Type: schema.Text, Nullable: true},
				updated,
				saved,
			},
			TracksSaves: true,
		},
		{
			Name: KindExternalLink,
			Fields: []schema.Field{
				id,
				{Name: "url", Type: schema.Text, Nullable: true},
				{Name: "title", Type: schema.Text, Nullable: true},
				courseID,
				{Name: "module_name", Type: schema.Text, Nullable: true},
				updated,
				saved,
			},
			TracksSaves: true,
		},
	}
}

// NewRegistry builds and validates the registry of catalog kinds.
func NewRegistry() (*schema.Registry, error) {
	r := schema.NewRegistry()
	for _, k := range Kinds() {
		if err := r.Register(k); err != nil {
			return nil, fmt.Errorf("registering %s: %w", k.Name, err)
		}
	}
	return r, nil
}
