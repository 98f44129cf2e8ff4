package contextbuilder

import (
	"sort"
	"strings"

	"github.com/park285/directory-assistant-go/internal/directory"
	"github.com/park285/directory-assistant-go/internal/textnorm"
)

// Listing 은 서비스 종류가 분류된 제공자 요약이다.
type Listing struct {
	directory.ListingSummary
	ServiceType string
	Services    []directory.ServiceOffering
	Views       int64
}

// MinPrice 는 게시된 가장 낮은 가격을 반환한다. 가격이 없으면 false.
func (l Listing) MinPrice() (float64, bool) {
	best, ok := 0.0, false
	for _, s := range l.Services {
		if s.PriceMXN <= 0 {
			continue
		}
		if !ok || s.PriceMXN < best {
			best, ok = s.PriceMXN, true
		}
	}
	return best, ok
}

// Snapshot 은 컨텍스트 생성 시점의 구조화된 조회 결과다.
// 대화의 active context 후보 선정에 쓰인다.
type Snapshot struct {
	Listings []Listing
}

// Query 는 후보 검색 조건이다.
type Query struct {
	ServiceType string
	City        string
	MaxPriceMXN float64
	Limit       int
}

// Candidates 는 조건에 맞는 제공자를 평점, 리뷰 수, 이름 순으로 반환한다.
func (s Snapshot) Candidates(q Query) []Listing {
	if q.ServiceType == "" {
		return nil
	}
	city := textnorm.Fold(q.City)

	var out []Listing
	for _, l := range s.Listings {
		if l.ServiceType != q.ServiceType {
			continue
		}
		if city != "" && textnorm.Fold(l.City) != city {
			continue
		}
		if q.MaxPriceMXN > 0 {
			if price, ok := l.MinPrice(); ok && price > q.MaxPriceMXN {
				continue
			}
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgRating != out[j].AvgRating {
			return out[i].AvgRating > out[j].AvgRating
		}
		if out[i].ReviewCount != out[j].ReviewCount {
			return out[i].ReviewCount > out[j].ReviewCount
		}
		return strings.Compare(out[i].Name, out[j].Name) < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
