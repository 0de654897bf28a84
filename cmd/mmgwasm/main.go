package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wasmengine "github.com/mmgwasm/mmgwasm/engine"
	"github.com/mmgwasm/mmgwasm/enginetest"
	"github.com/mmgwasm/mmgwasm/mesh"
	"github.com/mmgwasm/mmgwasm/meshfmt"
	"github.com/mmgwasm/mmgwasm/worker"
)

var (
	enginePath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:          "mmgwasm",
		Short:        "Drive the wasm remeshing engine from the command line",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				if log, err := zap.NewDevelopment(); err == nil {
					wasmengine.SetLogger(log)
				}
			}
		},
	}
	root.PersistentFlags().StringVar(&enginePath, "engine", "",
		"path to the engine wasm binary (built-in fake when empty)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine traffic")

	root.AddCommand(infoCmd(), convertCmd(), remeshCmd(), serveCmd(), tuiCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openSession builds a session over the configured engine. An empty
// --engine flag selects the in-process fake, which is enough for format
// work and smoke tests.
func openSession(ctx context.Context) (*mesh.Session, error) {
	if enginePath == "" {
		return mesh.NewSession(enginetest.New()), nil
	}

	wasmBytes, err := os.ReadFile(enginePath)
	if err != nil {
		return nil, fmt.Errorf("read engine: %w", err)
	}
	eng, err := wasmengine.New(ctx, nil)
	if err != nil {
		return nil, err
	}
	mod, err := eng.Load(ctx, wasmBytes)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	return mesh.NewSession(inst), nil
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <mesh>",
		Short: "Print format, kind and entity counts of a mesh file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			format, kind, err := meshfmt.Detect(buf)
			if err != nil {
				return err
			}
			d, _, err := meshfmt.Decode(buf)
			if err != nil {
				return err
			}
			fmt.Printf("format:   %s\n", format)
			fmt.Printf("kind:     %s\n", kind)
			fmt.Printf("vertices: %d\n", d.VertexCount())
			fmt.Printf("cells:    %d\n", d.CellCount())
			fmt.Printf("boundary: %d\n", d.BoundaryCount())
			return nil
		},
	}
}

func convertCmd() *cobra.Command {
	var binary bool
	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Re-encode a mesh file between text and binary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			d, _, err := meshfmt.Decode(buf)
			if err != nil {
				return err
			}
			format := meshfmt.FormatText
			if binary {
				format = meshfmt.FormatBinary
			}
			out, err := meshfmt.Encode(d, format)
			if err != nil {
				return err
			}
			return os.WriteFile(args[1], out, 0o644)
		},
	}
	cmd.Flags().BoolVar(&binary, "binary", false, "write binary output")
	return cmd
}

func remeshCmd() *cobra.Command {
	opts := &mesh.Options{}
	var binary bool
	cmd := &cobra.Command{
		Use:   "remesh <in> <out>",
		Short: "Adapt a mesh and write the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ses, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer ses.Close(ctx)

			buf, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m, err := mesh.LoadMesh(ctx, ses, buf)
			if err != nil {
				return err
			}

			res, err := m.Remesh(ctx, opts)
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", w)
			}
			if res.Mesh == nil {
				return fmt.Errorf("remesh produced no output mesh")
			}

			format := meshfmt.FormatText
			if binary {
				format = meshfmt.FormatBinary
			}
			out, err := res.Mesh.Export(ctx, format)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], out, 0o644); err != nil {
				return err
			}

			fmt.Printf("vertices: %d, cells: %d (quality %.3f -> %.3f, %s)\n",
				res.Counts.Vertices, res.Counts.Cells,
				res.QualityBefore, res.QualityAfter,
				res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Float64Var(&opts.Hmax, "hmax", 0, "maximal edge length")
	cmd.Flags().Float64Var(&opts.Hmin, "hmin", 0, "minimal edge length")
	cmd.Flags().Float64Var(&opts.Hausd, "hausd", 0, "Hausdorff distance bound")
	cmd.Flags().Float64Var(&opts.Hgrad, "hgrad", 0, "size gradation bound")
	cmd.Flags().BoolVar(&opts.NoInsert, "no-insert", false, "suppress point insertion")
	cmd.Flags().BoolVar(&opts.NoSwap, "no-swap", false, "suppress edge swapping")
	cmd.Flags().BoolVar(&opts.NoMove, "no-move", false, "suppress point relocation")
	cmd.Flags().BoolVar(&binary, "binary", false, "write binary output")
	return cmd
}

func serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a remote remesh worker over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ses, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer ses.Close(ctx)

			fmt.Printf("worker listening on %s\n", listen)
			return worker.NewServer(ses).ListenAndServe(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8337", "listen address")
	return cmd
}

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui <mesh>",
		Short: "Interactive remesh panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(args[0])
		},
	}
}
