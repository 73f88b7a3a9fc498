package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/boxlabel"
	"github.com/menta2k/boxlabel/internal/config"
	"github.com/menta2k/boxlabel/internal/utils"
	"github.com/menta2k/boxlabel/pkg/editor"
	"github.com/menta2k/boxlabel/pkg/imageio"
	"github.com/menta2k/boxlabel/pkg/labels"
	"github.com/menta2k/boxlabel/pkg/types"
)

// imageFlags registers the -dataset and -image flags every command takes
func imageFlags(fs *flag.FlagSet) (dataset, imagePath *string) {
	dataset = fs.String("dataset", "", "dataset id")
	imagePath = fs.String("image", "", "image path inside the dataset")
	return dataset, imagePath
}

func requireImage(fs *flag.FlagSet, dataset, imagePath string) error {
	if dataset == "" || imagePath == "" {
		fs.Usage()
		return errors.New("-dataset and -image are required")
	}
	return nil
}

func loadImage(ctx context.Context, ws *boxlabel.Workspace, dataset, imagePath string) (*types.LabelSet, image.Image, error) {
	set, err := ws.Store.GetLabels(ctx, dataset, imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("labels: %w", err)
	}
	img, err := ws.Images.Open(ctx, dataset, imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("image: %w", err)
	}
	return set, img, nil
}

func outputPath(ws *boxlabel.Workspace, out, imagePath, suffix, ext string) string {
	if out != "" {
		return out
	}
	return utils.GenerateOutputFilename(imagePath, ws.Config.Output.OutputDir, "", suffix, ext)
}

func runRender(ctx context.Context, ws *boxlabel.Workspace, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dataset, imagePath := imageFlags(fs)
	out := fs.String("out", "", "output file (default: <output_dir>/<image>_boxes.<format>)")
	format := fs.String("format", "", "output format: jpg|png|webp (default: output.default_format)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireImage(fs, *dataset, *imagePath); err != nil {
		return err
	}
	if *format == "" {
		*format = ws.Config.Output.DefaultFormat
	}

	set, img, err := loadImage(ctx, ws, *dataset, *imagePath)
	if err != nil {
		return err
	}
	overlay, err := ws.Renderer().Overlay(img, set.Boxes, types.ClassMap(ws.Config.Editor.Classes))
	if err != nil {
		return err
	}

	path := outputPath(ws, *out, *imagePath, "_boxes", *format)
	if err := imageio.New().Save(overlay, path, *format, ws.Config.Output.Quality, false); err != nil {
		return err
	}
	log.Printf("wrote %s (%d boxes)", path, len(set.Boxes))
	return nil
}

func runCrop(ctx context.Context, ws *boxlabel.Workspace, args []string) error {
	fs := flag.NewFlagSet("crop", flag.ContinueOnError)
	dataset, imagePath := imageFlags(fs)
	outDir := fs.String("out", "", "output directory (default: output.output_dir)")
	size := fs.Int("size", -1, "square crop size in pixels, 0 keeps the box size (default: output.crop_size)")
	ext := fs.String("ext", "", "output format: jpg|png|webp (default: output.default_format)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireImage(fs, *dataset, *imagePath); err != nil {
		return err
	}
	if *outDir == "" {
		*outDir = ws.Config.Output.OutputDir
	}
	if *size < 0 {
		*size = ws.Config.Output.CropSize
	}
	if *ext == "" {
		*ext = ws.Config.Output.DefaultFormat
	}

	set, img, err := loadImage(ctx, ws, *dataset, *imagePath)
	if err != nil {
		return err
	}

	loader := imageio.New()
	classes := types.ClassMap(ws.Config.Editor.Classes)
	base := strings.TrimSuffix(filepath.Base(*imagePath), filepath.Ext(*imagePath))
	for i, box := range set.Boxes {
		crop, err := loader.CropBox(img, box, *size, *size)
		if err != nil {
			log.Printf("box %d skipped: %v", i, err)
			continue
		}
		name := fmt.Sprintf("%s_%03d_%s.%s", base, i+1, utils.SanitizeFilename(classes.Name(box.ClassID)), strings.ToLower(*ext))
		path := filepath.Join(*outDir, name)
		if err := loader.Save(crop, path, *ext, ws.Config.Output.Quality, false); err != nil {
			log.Printf("save %s failed: %v", path, err)
			continue
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

func runSuggest(ctx context.Context, ws *boxlabel.Workspace, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	dataset, imagePath := imageFlags(fs)
	write := fs.Bool("write", false, "add the suggestions to the image's labels and save")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireImage(fs, *dataset, *imagePath); err != nil {
		return err
	}

	_, img, err := loadImage(ctx, ws, *dataset, *imagePath)
	if err != nil {
		return err
	}
	boxes, err := ws.Suggester.SuggestImage(ctx, img, types.ClassMap(ws.Config.Editor.Classes))
	if err != nil {
		return err
	}

	if !*write {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"boxes": boxes})
	}

	sess := ws.NewSession(nil)
	defer sess.Close()
	if err := sess.Open(ctx, *dataset, *imagePath); err != nil {
		return err
	}
	var added int
	sess.Do(func(ed *editor.Editor) { added = ed.AddBoxes(boxes) })
	if err := sess.Save(ctx); err != nil {
		return err
	}
	log.Printf("added %d of %d suggested boxes to %s/%s", added, len(boxes), *dataset, *imagePath)
	return nil
}

// runConvert copies every image's labels from the configured store into a
// YOLO directory or a SQLite database
func runConvert(ctx context.Context, ws *boxlabel.Workspace, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	dataset := fs.String("dataset", "", "dataset id")
	to := fs.String("to", config.StoreSQLite, "target store: yolo|sqlite")
	dst := fs.String("dst", "", "target YOLO root or SQLite file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataset == "" || *dst == "" {
		fs.Usage()
		return errors.New("-dataset and -dst are required")
	}

	lister, ok := ws.Store.(labels.Lister)
	if !ok {
		return fmt.Errorf("store %s cannot list images", ws.Config.Store.Kind)
	}
	images, err := lister.ListImages(ctx, *dataset)
	if err != nil {
		return err
	}

	var target labels.Store
	var register func(path string, set *types.LabelSet) error
	switch *to {
	case config.StoreYOLO:
		target = labels.NewYOLOStore(*dst, ws.Logger)
	case config.StoreSQLite:
		db, err := labels.OpenSQLite(*dst)
		if err != nil {
			return err
		}
		store, err := labels.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return err
		}
		defer store.Close()
		target = store
		register = func(path string, set *types.LabelSet) error {
			return store.RegisterImage(ctx, *dataset, path, set.ImageWidth, set.ImageHeight)
		}
	default:
		return fmt.Errorf("unsupported target store %q", *to)
	}

	var converted, boxes int
	for _, path := range images {
		set, err := ws.Store.GetLabels(ctx, *dataset, path)
		if err != nil {
			log.Printf("%s skipped: %v", path, err)
			continue
		}
		if register != nil {
			if err := register(path, set); err != nil {
				return err
			}
		}
		if err := target.SaveLabels(ctx, *dataset, path, set.Boxes); err != nil {
			log.Printf("%s not written: %v", path, err)
			continue
		}
		converted++
		boxes += len(set.Boxes)
	}
	log.Printf("converted %d of %d images (%d boxes) into %s", converted, len(images), boxes, *dst)
	return nil
}
