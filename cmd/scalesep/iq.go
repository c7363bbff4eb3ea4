package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/banshee-data/scalesep/internal/packiq"
)

// codecFlags are shared by pack and unpack.
type codecFlags struct {
	highSNR  bool
	swap     bool
	planar   bool
	noTables bool
}

func (f *codecFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&f.highSNR, "high-snr", false, "Use the high-SNR layout (12-bit mantissa, linear underflow)")
	fs.BoolVar(&f.swap, "swap", false, "Byte-swap every packed code")
	fs.BoolVar(&f.planar, "planar", false, "Float file holds all I samples then all Q samples instead of interleaved pairs")
	fs.BoolVar(&f.noTables, "no-tables", false, "Decode without the 256 KiB lookup table")
}

func (f *codecFlags) flags() packiq.Flags {
	var fl packiq.Flags
	if f.highSNR {
		fl |= packiq.HighSNR
	}
	if f.swap {
		fl |= packiq.ByteSwap
	}
	return fl
}

func (f *codecFlags) codec() *packiq.Codec {
	if f.noTables {
		return packiq.NewCodec(packiq.WithoutTables())
	}
	return packiq.NewCodec()
}

func cmdPack(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("pack", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf codecFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageErrorf("pack takes an input float32 file and an output code file")
	}

	samples, err := readFloats(fs.Arg(0), 0)
	if err != nil {
		return err
	}
	if cf.planar && len(samples)%2 != 0 {
		return fmt.Errorf("%s: planar input needs an even number of samples, got %d", fs.Arg(0), len(samples))
	}

	c, fl := cf.codec(), cf.flags()
	codes := make([]uint16, len(samples))
	if cf.planar {
		half := len(samples) / 2
		c.EncodeIQ(codes, samples[:half], samples[half:], fl)
	} else {
		c.EncodeSlice(codes, samples, fl)
	}
	if err := writeCodes(fs.Arg(1), codes); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "packed %d samples\n", len(codes))
	return nil
}

func cmdUnpack(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("unpack", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf codecFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageErrorf("unpack takes an input code file and an output float32 file")
	}

	codes, err := readCodes(fs.Arg(0))
	if err != nil {
		return err
	}
	if cf.planar && len(codes)%2 != 0 {
		return fmt.Errorf("%s: planar output needs an even number of codes, got %d", fs.Arg(0), len(codes))
	}

	c, fl := cf.codec(), cf.flags()
	samples := make([]float32, len(codes))
	if cf.planar {
		half := len(codes) / 2
		c.DecodeIQ(samples[:half], samples[half:], codes, fl)
	} else {
		c.DecodeSlice(samples, codes, fl)
	}
	if err := writeFloats(fs.Arg(1), samples); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "unpacked %d samples\n", len(samples))
	return nil
}
