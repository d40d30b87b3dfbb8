package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/catalog"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/gateway"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/links"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

func newBrowseCmd() *cobra.Command {
	var (
		gatewayURL   string
		biome        string
		direction    string
		category     string
		verification string
		search       string
		minPrice     float64
		maxPrice     float64
		pageNum      int
		pageSize     int
		timeoutMS    int
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Query the catalog through the data gateway",
		Long: `Query the catalog the same way the storefront does: facets translate
into the gateway dialect, verified-only filtering happens in-process.

Examples:
  marketctl browse --biome jungle --category tools
  marketctl browse --verification verified --min-price 5 --max-price 50
  marketctl browse --q diamond --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := market.FilterState{
				Biome:        biome,
				Direction:    direction,
				Category:     category,
				Verification: verification,
				Search:       search,
			}
			if cmd.Flags().Changed("min-price") {
				filters.MinPrice = &minPrice
			}
			if cmd.Flags().Changed("max-price") {
				filters.MaxPrice = &maxPrice
			}

			client := &http.Client{Timeout: time.Millisecond * time.Duration(timeoutMS)}
			gw := gateway.NewClient(gatewayURL, client)
			svc := catalog.NewService(gw, nil, links.NewGenerator("/api/v1"), nil)

			result, err := svc.LoadCatalog(cmd.Context(), filters, pageNum, pageSize, market.Anonymous())
			if err != nil {
				return err
			}
			if result.Degraded {
				return fmt.Errorf("gateway degraded: %s", result.Reason)
			}
			if asJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printCatalogTable(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway-url", envOr("GATEWAY_URL", "http://localhost:3000"), "data gateway base URL")
	cmd.Flags().StringVar(&biome, "biome", "", "filter by shop biome (jungle, desert, ...)")
	cmd.Flags().StringVar(&direction, "direction", "", "filter by shop direction (north, south, east, west)")
	cmd.Flags().StringVar(&category, "category", "", "filter by item category")
	cmd.Flags().StringVar(&verification, "verification", "", "verified to keep only human-verified listings")
	cmd.Flags().StringVar(&search, "q", "", "substring match on item name")
	cmd.Flags().Float64Var(&minPrice, "min-price", 0, "minimum price in diamonds")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "maximum price in diamonds")
	cmd.Flags().IntVar(&pageNum, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "items per page")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 3000, "gateway request timeout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the raw catalog page as JSON")

	return cmd
}

func printCatalogTable(w io.Writer, page *market.CatalogPage) {
	p := page.Pagination
	fmt.Fprintf(w, "%d items (page %d/%d), %d shops, %d categories\n\n",
		p.TotalItems, p.CurrentPage, p.TotalPages, page.Stats.ShopCount, page.Stats.CategoryCount)
	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No items on this page.")
		return
	}
	fmt.Fprintf(w, "%-12s %-28s %-16s %10s %7s  %s\n", "ID", "NAME", "CATEGORY", "PRICE", "STOCK", "SHOP")
	for _, item := range page.Items {
		fmt.Fprintf(w, "%-12s %-28s %-16s %10.2f %7d  %s\n",
			item.ID, truncate(item.Name, 28), item.Category, item.Price, item.StockQuantity, item.OwnerShopName)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
