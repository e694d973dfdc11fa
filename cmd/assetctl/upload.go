package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetpipe/internal/client/uploader"
	"assetpipe/internal/service/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload local files",
	Long: `Upload local files with bounded concurrency.

Content types are detected from the file header. Files at or above
--multipart-threshold are sent as multipart uploads.

Example:
  assetctl upload --purpose project_photo --context p-42 shots/*.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().String("purpose", string(upload.PurposeAsset), "Upload purpose: asset, project_photo, project_video, avatar")
	uploadCmd.Flags().String("context", "", "Project or account id for context-scoped purposes")
	uploadCmd.Flags().Int("concurrency", uploader.DefaultConcurrency, "Parallel uploads (1-6)")
	uploadCmd.Flags().Int64("multipart-threshold", 64<<20, "Size in bytes at which multipart upload is used")
	uploadCmd.Flags().Int("part-concurrency", uploader.DefaultPartConcurrency, "Parallel parts per multipart upload")
}

func runUpload(cmd *cobra.Command, args []string) error {
	purpose, _ := cmd.Flags().GetString("purpose")
	contextID, _ := cmd.Flags().GetString("context")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	threshold, _ := cmd.Flags().GetInt64("multipart-threshold")
	partConcurrency, _ := cmd.Flags().GetInt("part-concurrency")

	files := make([]uploader.File, 0, len(args))
	var total int64
	for _, path := range args {
		f, err := uploader.LocalFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		f.Purpose = upload.Purpose(purpose)
		f.ContextID = contextID
		files = append(files, f)
		total += f.Size
	}
	fmt.Printf("Uploading %d file(s), %s total\n", len(files), humanize.Bytes(uint64(total)))

	s := uploader.NewScheduler(newClient(cmd), uploader.NewHTTPTransport(), uploader.Options{
		Concurrency:        concurrency,
		MultipartThreshold: threshold,
		PartConcurrency:    partConcurrency,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	s.Add(files...)
	waitErr := make(chan error, 1)
	go func() { waitErr <- s.Wait(ctx) }()

	last := map[string]uploader.Status{}
	show := func(it uploader.Item) {
		if last[it.ID] != it.Status {
			last[it.ID] = it.Status
			printItem(it)
		}
	}
loop:
	for {
		select {
		case it := <-s.Updates():
			show(it)
		case err := <-waitErr:
			if err != nil {
				fmt.Println("Interrupted, canceling uploads...")
				closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				_ = s.Close(closeCtx)
				cancel()
			}
			break loop
		}
	}
	// 取出缓冲中剩余的进度事件
drain:
	for {
		select {
		case it := <-s.Updates():
			show(it)
		default:
			break drain
		}
	}

	var ok, failed, canceled int
	for _, it := range s.Items() {
		switch it.Status {
		case uploader.StatusSuccess:
			ok++
		case uploader.StatusError:
			failed++
		case uploader.StatusCanceled:
			canceled++
		}
	}
	fmt.Printf("\nDone in %s: %d uploaded, %d failed, %d canceled\n",
		time.Since(start).Round(time.Millisecond), ok, failed, canceled)
	if failed > 0 || canceled > 0 {
		return fmt.Errorf("%d upload(s) did not finish", failed+canceled)
	}
	return nil
}

func printItem(it uploader.Item) {
	name := it.File.Name
	switch it.Status {
	case uploader.StatusSuccess:
		url := ""
		if it.Result != nil {
			url = it.Result.AccessURL
		}
		fmt.Printf("  ok        %-32s %8s  %s\n", name, humanize.Bytes(uint64(it.File.Size)), url)
	case uploader.StatusError:
		fmt.Printf("  error     %-32s %s\n", name, it.ErrorMessage)
	case uploader.StatusCanceled:
		fmt.Printf("  canceled  %-32s\n", name)
	case uploader.StatusUploading:
		fmt.Printf("  uploading %-32s -> %s\n", name, it.ObjectKey)
	}
}
