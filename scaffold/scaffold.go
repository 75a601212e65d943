// Package scaffold creates the directory tree used to organise course
// materials: every grade crossed with every subject, plus a flat set of
// extracurricular subjects.
package scaffold

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ZacxDev/mirrortex/fs"
	"github.com/ZacxDev/mirrortex/logging"
)

type Layout struct {
	CurriculumRoot string
	Grades         []string
	Subjects       []string
	ExtraRoot      string
	Extras         []string
}

func DefaultLayout() Layout {
	return Layout{
		CurriculumRoot: "课内",
		Grades: []string{
			"一年级", "二年级", "三年级", "四年级", "五年级", "六年级",
			"初一", "初二", "初三",
			"高一", "高二", "高三",
		},
		Subjects:  []string{"语文", "数学", "英语"},
		ExtraRoot: "课外",
		Extras:    []string{"自然科学", "编程与AI"},
	}
}

// Paths lists every directory of the layout below base: the grade x subject
// tree first, then the extracurricular directories.
func (l Layout) Paths(base string) []string {
	paths := make([]string, 0, len(l.Grades)*len(l.Subjects)+len(l.Extras))
	for _, grade := range l.Grades {
		for _, subject := range l.Subjects {
			paths = append(paths, filepath.Join(base, l.CurriculumRoot, grade, subject))
		}
	}
	for _, extra := range l.Extras {
		paths = append(paths, filepath.Join(base, l.ExtraRoot, extra))
	}
	return paths
}

type Scaffolder struct {
	fs     fs.FileSystem
	layout Layout
}

func NewScaffolder(fs fs.FileSystem, layout Layout) *Scaffolder {
	return &Scaffolder{fs: fs, layout: layout}
}

// Create makes every layout directory under base. Existing directories are
// left alone, so running it again is harmless. The first filesystem error
// aborts the run.
func (s *Scaffolder) Create(ctx context.Context, base string) ([]string, error) {
	log := logging.FromContext(ctx)

	var created []string
	for _, path := range s.layout.Paths(base) {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if err := s.fs.MkdirAll(path, 0755); err != nil {
			return created, errors.Wrapf(err, "failed to create %s", path)
		}
		log.Info().Str("file", path).Msgf("Created: %s", path)
		created = append(created, path)
	}
	return created, nil
}

// Plan reports the directories Create would make without touching the disk.
func (s *Scaffolder) Plan(ctx context.Context, base string) []string {
	log := logging.FromContext(ctx)

	paths := s.layout.Paths(base)
	for _, path := range paths {
		log.Info().Str("file", path).Msgf("Would create: %s", path)
	}
	return paths
}
