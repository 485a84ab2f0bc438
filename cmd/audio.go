package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/harmonymaker/internal/formatter"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/desertthunder/harmonymaker/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// AudioList prints or exports a user's saved pairs.
func (r *Runner) AudioList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	userID := cmd.String("user")

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := r.newStorage(r.config.Storage, r.logger)
	if err != nil {
		return err
	}

	pairs, err := r.pipeline(db, store, nil).Pairs(ctx, userID)
	if err != nil {
		return err
	}
	sheet := formatter.PairsSheet(pairs, r.now())

	if output := cmd.String("output"); output != "" {
		path, err := formatter.WriteExport(sheet, format, output, "pairs_"+userID)
		if err != nil {
			return err
		}
		r.writePlain("%s\n", r.palette.Status(fmt.Sprintf("exported %d pair(s) to %s", len(pairs), path), nil))
		return nil
	}

	if len(pairs) == 0 && format == formatter.FormatTable {
		r.writePlain("%s\n", r.palette.Help("No saved audio for "+userID))
		return nil
	}

	data, err := formatter.Render(sheet, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// AudioTransform sends a local clip through the ML service and writes the result next to it (or to --output).
func (r *Runner) AudioTransform(ctx context.Context, cmd *cli.Command) error {
	up, err := readClip(cmd.Args().First())
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if output == "" {
		output = filepath.Join(filepath.Dir(cmd.Args().First()), tasks.TransformedWAVName(up.Filename))
	}

	pipeline := tasks.NewPipeline(tasks.PipelineOpts{
		Transformer: r.transformer(),
		MaxSize:     r.config.Storage.MaxFileSize,
		Logger:      r.logger,
	})

	r.logger.Info("transforming clip", "file", up.Filename, "size", humanize.Bytes(uint64(len(up.Data))))
	out, err := pipeline.Transform(ctx, up)
	if err != nil {
		r.writePlain("%s\n", r.palette.Status("transform", err))
		return err
	}

	if err := os.WriteFile(output, out, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	r.writePlain("%s\n", r.palette.Status(fmt.Sprintf("wrote %s (%s)", output, humanize.Bytes(uint64(len(out)))), nil))
	return nil
}

// AudioHarmonize runs the full pipeline for a local clip, printing each progress update.
func (r *Runner) AudioHarmonize(ctx context.Context, cmd *cli.Command) error {
	up, err := readClip(cmd.Args().First())
	if err != nil {
		return err
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := r.newStorage(r.config.Storage, r.logger)
	if err != nil {
		return err
	}
	pipeline := r.pipeline(db, store, r.transformer())

	progress := make(chan tasks.ProgressUpdate, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if !cmd.Bool("json") {
				r.writePlain("%s\n", r.palette.Progress(update))
			}
		}
	}()

	result, err := pipeline.Harmonize(ctx, cmd.String("user"), up, progress)
	close(progress)
	<-done

	if err != nil {
		r.writePlain("%s\n", r.palette.Status("harmonize", err))
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	r.writePlainln("%s", r.palette.Result(result))
	return nil
}

// AudioDelete removes a saved pair of --user.
func (r *Runner) AudioDelete(ctx context.Context, cmd *cli.Command) error {
	originalID := cmd.Args().First()
	if originalID == "" {
		return fmt.Errorf("%w: original id is required", shared.ErrMissingArgument)
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := r.newStorage(r.config.Storage, r.logger)
	if err != nil {
		return err
	}

	if err := r.pipeline(db, store, nil).DeletePair(ctx, cmd.String("user"), originalID); err != nil {
		return err
	}

	r.writePlain("%s\n", r.palette.Status("deleted pair "+originalID, nil))
	return nil
}

// readClip loads a local audio file, guessing its content type from the extension.
func readClip(path string) (tasks.Upload, error) {
	if path == "" {
		return tasks.Upload{}, fmt.Errorf("%w: input file is required", shared.ErrMissingArgument)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tasks.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var contentType string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		contentType = "audio/wav"
	case ".mp3":
		contentType = "audio/mpeg"
	}

	return tasks.Upload{Filename: filepath.Base(path), ContentType: contentType, Data: data}, nil
}
