package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mickamy/spxplain/internal/model"
)

type responseDoc struct {
	Metadata *metadataDoc `json:"metadata,omitempty"`
	Rows     []rowDoc     `json:"rows,omitempty"`
	Stats    *statsDoc    `json:"stats,omitempty"`
}

type metadataDoc struct {
	RowType struct {
		Fields []fieldDoc `json:"fields"`
	} `json:"rowType"`
}

type fieldDoc struct {
	Name string `json:"name"`
}

type rowDoc struct {
	Entry []any `json:"entry"`
}

type statsDoc struct {
	QueryPlan  *queryPlanDoc  `json:"queryPlan,omitempty"`
	QueryStats *queryStatsDoc `json:"queryStats,omitempty"`
}

type queryPlanDoc struct {
	PlanNodes []planNodeDoc `json:"planNodes"`
}

type planNodeDoc struct {
	Index       *int           `json:"index,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
	ChildLinks  []childLinkDoc `json:"childLinks,omitempty"`
}

type childLinkDoc struct {
	ChildIndex int    `json:"childIndex"`
	Type       string `json:"type,omitempty"`
	Variable   string `json:"variable,omitempty"`
}

type queryStatsDoc struct {
	AdditionalProperties []propertyDoc `json:"additionalProperties"`
}

type propertyDoc struct {
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}

// EncodeResponse writes rs in the document format read by ParseResponse.
func EncodeResponse(w io.Writer, rs *model.ResultSet) error {
	if rs == nil {
		return fmt.Errorf("encode response: empty result")
	}

	doc := responseDoc{}
	if len(rs.Fields) > 0 {
		doc.Metadata = &metadataDoc{}
		for _, f := range rs.Fields {
			doc.Metadata.RowType.Fields = append(doc.Metadata.RowType.Fields, fieldDoc{Name: f})
		}
	}
	for _, r := range rs.Rows {
		doc.Rows = append(doc.Rows, rowDoc{Entry: r.Entry})
	}
	if rs.Stats != nil {
		doc.Stats = &statsDoc{}
		if qp := rs.Stats.QueryPlan; qp != nil {
			doc.Stats.QueryPlan = &queryPlanDoc{PlanNodes: make([]planNodeDoc, 0, len(qp.PlanNodes))}
			for _, n := range qp.PlanNodes {
				node := planNodeDoc{Index: n.Index, Kind: n.Kind, DisplayName: n.DisplayName}
				for _, l := range n.ChildLinks {
					node.ChildLinks = append(node.ChildLinks, childLinkDoc(l))
				}
				doc.Stats.QueryPlan.PlanNodes = append(doc.Stats.QueryPlan.PlanNodes, node)
			}
		}
		if qs := rs.Stats.QueryStats; qs != nil {
			doc.Stats.QueryStats = &queryStatsDoc{AdditionalProperties: make([]propertyDoc, 0, len(qs.Properties))}
			for _, p := range qs.Properties {
				doc.Stats.QueryStats.AdditionalProperties = append(doc.Stats.QueryStats.AdditionalProperties, propertyDoc(p))
			}
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return nil
}
