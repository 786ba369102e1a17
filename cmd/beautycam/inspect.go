package main

import (
	"fmt"
	"io"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dudu/beautycam/internal/inference"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect-model <model.onnx>...",
	Short: "Print the signature of an ONNX model",
	Long: `Load each model with ONNX Runtime and print its inputs, outputs and
metadata. With --session a session is created to check which execution
provider the model runs on. With --metal the model is also imported with
go-metal to see whether its operators are supported there.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("onnx-library", "", "Path to the onnxruntime shared library")
	inspectCmd.Flags().Bool("session", false, "Create an inference session")
	inspectCmd.Flags().Bool("metal", false, "Also try a go-metal import")
}

func runInspect(cmd *cobra.Command, args []string) (err error) {
	library, _ := cmd.Flags().GetString("onnx-library")
	withSession, _ := cmd.Flags().GetBool("session")
	withMetal, _ := cmd.Flags().GetBool("metal")

	if err := inference.Initialize(library); err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(inference.Shutdown))

	out := cmd.OutOrStdout()
	for _, path := range args {
		info, err := inference.Inspect(path)
		if err != nil {
			return err
		}
		printModel(out, info)

		if withSession {
			if err := printSession(out, info); err != nil {
				return err
			}
		}
		if withMetal {
			report, err := inference.CheckMetalImport(path)
			if err != nil {
				fmt.Fprintf(out, "\ngo-metal: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "\ngo-metal: %d layers, %d weight tensors\n", len(report.Layers), report.Weights)
			for i, layer := range report.Layers {
				fmt.Fprintf(out, "  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
			}
		}
	}
	return nil
}

func printModel(out io.Writer, info *inference.ModelInfo) {
	fmt.Fprintf(out, "%s\n", info.Path)
	fmt.Fprintf(out, "\nInputs (%d):\n", len(info.Inputs))
	for _, t := range info.Inputs {
		fmt.Fprintf(out, "  %s: shape=%v, type=%s\n", t.Name, t.Dimensions, t.DataType)
	}
	fmt.Fprintf(out, "\nOutputs (%d):\n", len(info.Outputs))
	for _, t := range info.Outputs {
		fmt.Fprintf(out, "  %s: shape=%v, type=%s\n", t.Name, t.Dimensions, t.DataType)
	}

	if info.Producer == "" && info.Domain == "" && info.Description == "" && info.Version == 0 {
		return
	}
	fmt.Fprintln(out, "\nMetadata:")
	fmt.Fprintf(out, "  Producer: %s\n", info.Producer)
	fmt.Fprintf(out, "  Version: %d\n", info.Version)
	fmt.Fprintf(out, "  Domain: %s\n", info.Domain)
	fmt.Fprintf(out, "  Description: %s\n", info.Description)
}

func printSession(out io.Writer, info *inference.ModelInfo) error {
	tensorName := func(t inference.TensorInfo, _ int) string { return t.Name }
	session, err := inference.NewSession(info.Path, lo.Map(info.Inputs, tensorName), lo.Map(info.Outputs, tensorName))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSession: provider=%s\n", session.Provider())
	return session.Destroy()
}
