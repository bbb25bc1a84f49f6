package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.firedancer.io/settle/cmd/settle/derive"
	"go.firedancer.io/settle/cmd/settle/inspect"
	"go.firedancer.io/settle/cmd/settle/simulate"
	"k8s.io/klog/v2"
)

var cmd = cobra.Command{
	Use:   "settle",
	Short: "Derived-authority settlement engine",
}

func init() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(
		&derive.Cmd,
		&inspect.Cmd,
		&simulate.Cmd,
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}
