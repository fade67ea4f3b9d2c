// cmd/test-convert provides a standalone CLI tool for trying a WebP conversion
// on a local file without an object store.
//
// Usage:
//
//	./test-convert -input photo.jpg -output photo.webp
//	./test-convert -input logo.png -quality 80
//	./test-convert -input scan.tiff -probe  # Show metadata only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/tendant/simple-webp/internal/img"
)

func main() {
	input := flag.String("input", "", "Input file path (required)")
	output := flag.String("output", "", "Output WebP path (default: input with .webp extension)")
	quality := flag.Int("quality", 100, "WebP quality 0-100 (ignored for images with transparency)")
	probe := flag.Bool("probe", false, "Show image metadata only (don't convert)")
	timeout := flag.Int("timeout", 30, "Conversion timeout in seconds")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	if *input == "" {
		fmt.Println("Error: -input flag is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("❌ Failed to read input file: %v", err)
	}

	if *output == "" && !*probe {
		root, _ := img.SplitExt(*input)
		*output = root + ".webp"
	}

	transcoder, err := img.ForFile(*input)
	if err != nil {
		log.Fatalf("❌ %v\n\nSupported formats:\n%s", err, formatSupportedTypes())
	}

	if *verbose {
		fmt.Printf("📄 Input: %s\n", *input)
		fmt.Printf("🔧 Using transcoder: %s\n", transcoder.Name())
	}

	if *probe {
		fmt.Println("\n📊 Image Metadata:")
		fmt.Println(strings.Repeat("-", 40))

		info, err := img.Inspect(data)
		if err != nil {
			log.Fatalf("❌ Failed to inspect image: %v", err)
		}
		printImageInfo(info, int64(len(data)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	fmt.Printf("\n🎨 Converting to WebP...\n")
	start := time.Now()

	out, err := transcoder.ToWebP(ctx, data, *quality)
	if err != nil {
		log.Fatalf("❌ Conversion failed: %v", err)
	}
	duration := time.Since(start)

	if err := os.WriteFile(*output, out, 0o644); err != nil {
		log.Fatalf("❌ Failed to write output file: %v", err)
	}

	fmt.Printf("\n✅ Conversion successful!\n")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📁 Output: %s\n", *output)
	fmt.Printf("📏 Size: %s (was %s)\n", formatBytes(int64(len(out))), formatBytes(int64(len(data))))
	fmt.Printf("⏱️  Time: %v\n", duration.Round(time.Millisecond))
	if len(data) > 0 {
		fmt.Printf("📉 Reduction: %.1f%%\n", float64(len(data)-len(out))/float64(len(data))*100)
	}

	if *verbose {
		if info, err := img.Inspect(data); err == nil {
			mode := fmt.Sprintf("lossy q=%d", *quality)
			if info.HasAlpha {
				mode = "lossless (transparency)"
			}
			fmt.Printf("\n📊 Source: %s %dx%d, encoded %s\n", info.Format, info.Width, info.Height, mode)
		}
	}

	fmt.Println()
}

// printImageInfo prints image metadata in a readable format
func printImageInfo(info img.Info, size int64) {
	fmt.Printf("Format: %s\n", info.Format)
	fmt.Printf("Dimensions: %dx%d pixels\n", info.Width, info.Height)
	fmt.Printf("Transparency: %t\n", info.HasAlpha)
	fmt.Printf("File Size: %s (%.2f MB)\n", formatBytes(size), float64(size)/(1024*1024))
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatSupportedTypes() string {
	var b strings.Builder
	for _, ext := range img.SupportedExtensions() {
		fmt.Fprintf(&b, "  • %s\n", ext)
	}
	return b.String()
}
