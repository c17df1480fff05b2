package server

import (
	"fmt"
	"net/http"
)

// handleClientJS serves the embeddable pagesplit script
func (s *Server) handleClientJS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write([]byte(GenerateClientScript(serverURL)))
}

// GenerateClientScript generates the ps.js script with the given server URL.
//
// The script fetches the running experiments fresh on every page load (no
// baked-in experiment list), asks the server for the visitor's assignment,
// applies the variant's mutation, and sends visit/conversion beacons. The
// localStorage copy of an assignment is only a fallback for when the
// assignment endpoint is unreachable; the server store stays authoritative.
func GenerateClientScript(serverURL string) string {
	return fmt.Sprintf(`(function(){
  var S='%s';

  // Get or create visitor ID
  var vid=localStorage.getItem('ps_vid');
  if(!vid){
    vid=(self.crypto&&crypto.randomUUID)?crypto.randomUUID():Date.now().toString(16)+'-'+Math.random().toString(16).slice(2);
    localStorage.setItem('ps_vid',vid);
  }

  var byName={};

  fetch(S+'/api/experiments').then(function(r){return r.json();}).then(function(exps){
    exps.forEach(function(exp){
      byName[exp.name]=exp;
      resolve(exp);
    });
    wireConversions();
  }).catch(function(){});

  function resolve(exp){
    var key='ps_a_'+exp.id;
    fetch(S+'/api/assign',{
      method:'POST',
      headers:{'Content-Type':'application/json'},
      body:JSON.stringify({experiment_id:exp.id,vid:vid})
    }).then(function(r){return r.json();}).then(function(a){
      localStorage.setItem(key,JSON.stringify(a.variant));
      apply(exp,a.variant);
      beacon(exp.id,'visit');
    }).catch(function(){
      // Server unreachable: fall back to the cached assignment, if any.
      var cached=localStorage.getItem(key);
      if(cached){apply(exp,JSON.parse(cached));}
    });
  }

  // Tagged mutation dispatch: unknown kinds are no-ops.
  function apply(exp,variant){
    if(!exp.target_selector)return;
    var els=document.querySelectorAll(exp.target_selector);
    els.forEach(function(el){
      switch(exp.mutation){
      case 'text':
        el.textContent=variant.content;
        break;
      case 'class':
        exp.variants.forEach(function(v){
          if(v.css_class)el.classList.remove(v.css_class);
        });
        if(variant.css_class)el.classList.add(variant.css_class);
        break;
      case 'attribute':
        el.setAttribute('placeholder',variant.content);
        break;
      }
    });
  }

  function wireConversions(){
    document.querySelectorAll('[data-ps-convert]').forEach(function(el){
      var exp=byName[el.dataset.psConvert];
      if(!exp)return;
      el.addEventListener('click',function(){
        beacon(exp.id,'conversion');
      });
    });
  }

  function beacon(id,type,value){
    var payload=JSON.stringify({experiment_id:id,event_type:type,vid:vid,value:value||0});
    if(navigator.sendBeacon){
      navigator.sendBeacon(S+'/b',payload);
    }else{
      fetch(S+'/b',{method:'POST',body:payload}).catch(function(){});
    }
  }

  // Programmatic conversion hook for goal events the page owns
  // (e.g. a completed download form).
  self.pagesplit={
    convert:function(name,value){
      var exp=byName[name];
      if(exp)beacon(exp.id,'conversion',value);
    }
  };
})();`, serverURL)
}
