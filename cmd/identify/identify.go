package identify

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/plantid/internal/app"
	"github.com/tphakala/plantid/internal/buildinfo"
	"github.com/tphakala/plantid/internal/conf"
	svc "github.com/tphakala/plantid/internal/identify"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/normalizer"
)

type options struct {
	userID string
	organ  string
	retry  bool
}

// Command creates the identify command, which runs one identification and
// prints the response as JSON.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "identify [photo file or URL]",
		Short: "Identify the plant in a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, build, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user", "", "Record the scan for this user id")
	cmd.Flags().StringVar(&opts.organ, "organ", "", "Organ shown in the photo (leaf, flower, fruit, bark)")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "Ignore any cached result for this photo")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, build *buildinfo.Context, source string, opts options) error {
	ctx := cmd.Context()
	log := logger.Global().Module("identify-cli")

	in, err := inputFor(source)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, settings, build, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("Error releasing resources", logger.Error(err))
		}
	}()

	req := svc.Request{Image: in, Organ: opts.organ}
	if opts.userID != "" {
		req.UserID = &opts.userID
	}

	identifyFn := a.Service.Identify
	if opts.retry {
		identifyFn = a.Service.Retry
	}
	resp, err := identifyFn(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", svc.UserMessage(err), err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// inputFor treats http(s) and data URIs as references and anything else as
// a local file path.
func inputFor(source string) (normalizer.Input, error) {
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return normalizer.FromString(source), nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return normalizer.Input{}, fmt.Errorf("error reading photo: %w", err)
	}
	return normalizer.FromBytes(data), nil
}
