package overpass

import "github.com/gridsight/gridtrace/engine/domain"

// Wire format of the Overpass JSON response.

type wireResponse struct {
	Elements []wireElement `json:"elements"`
}

type wireCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type wireMember struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

type wireElement struct {
	Type    string            `json:"type"`
	ID      int64             `json:"id"`
	Lat     float64           `json:"lat,omitempty"`
	Lon     float64           `json:"lon,omitempty"`
	Center  *wireCenter       `json:"center,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
	Nodes   []int64           `json:"nodes,omitempty"`
	Members []wireMember      `json:"members,omitempty"`
}

func (w wireElement) toDomain() domain.Element {
	el := domain.Element{
		Kind:  domain.Kind(w.Type),
		Ref:   w.ID,
		Lat:   w.Lat,
		Lon:   w.Lon,
		Nodes: w.Nodes,
		Tags:  w.Tags,
	}
	if w.Center != nil {
		el.Center = &domain.Coordinate{Lat: w.Center.Lat, Lon: w.Center.Lon}
	}
	for _, m := range w.Members {
		el.Members = append(el.Members, domain.Member{
			Kind: domain.Kind(m.Type),
			Ref:  m.Ref,
			Role: m.Role,
		})
	}
	return el
}
